package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"comic2kindle/internal/pages"
)

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <manifest>
    <item id="p1" href="xhtml/p1.xhtml" media-type="application/xhtml+xml"/>
    <item id="p2" href="xhtml/p2.xhtml" media-type="application/xhtml+xml"/>
    <item id="i1" href="images/z-first.jpg" media-type="image/jpeg"/>
    <item id="i2" href="images/a-second.jpg" media-type="image/jpeg"/>
    <item id="i3" href="images/orphan.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine>
    <itemref idref="p1"/>
    <itemref idref="p2"/>
  </spine>
</package>`

func TestExtractEPUBSpineOrder(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "volume.epub")
	writeZip(t, archive, map[string][]byte{
		"mimetype":                 []byte("application/epub+zip"),
		"META-INF/container.xml":   []byte(testContainerXML),
		"OEBPS/content.opf":        []byte(testOPF),
		"OEBPS/xhtml/p1.xhtml":     []byte(`<html><body><img src="../images/z-first.jpg"/></body></html>`),
		"OEBPS/xhtml/p2.xhtml":     []byte(`<html><body><img src="../images/a-second.jpg"/></body></html>`),
		"OEBPS/images/z-first.jpg": []byte("first"),
		"OEBPS/images/a-second.jpg": []byte("second"),
		"OEBPS/images/orphan.jpg":   []byte("orphan"),
	})

	doc, err := Extract(context.Background(), archive, "doc-3", pages.DirectionRightToLeft)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("expected 3 pages, got %d", doc.PageCount())
	}
	// Spine references beat alphabetical order; the orphan comes last.
	want := []string{"z-first.jpg", "a-second.jpg", "orphan.jpg"}
	for i, name := range want {
		if doc.Pages[i].Name != name {
			t.Fatalf("page %d = %s, want %s", i, doc.Pages[i].Name, name)
		}
	}
	if string(doc.Pages[0].Data) != "first" {
		t.Fatalf("unexpected page data: %q", doc.Pages[0].Data)
	}
}

func TestExtractEPUBMissingContainer(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.epub")
	writeZip(t, archive, map[string][]byte{
		"mimetype": []byte("application/epub+zip"),
	})
	if _, err := Extract(context.Background(), archive, "doc-4", pages.DirectionLeftToRight); err == nil {
		t.Fatal("expected error for epub without container.xml")
	}
}

func TestResolveHref(t *testing.T) {
	cases := []struct {
		dir, href, want string
	}{
		{"OEBPS/xhtml", "../images/a.jpg", "OEBPS/images/a.jpg"},
		{"OEBPS", "images/a.jpg", "OEBPS/images/a.jpg"},
		{".", "images/a.jpg", "images/a.jpg"},
		{"OEBPS", "/images/a.jpg", "images/a.jpg"},
		{"OEBPS", "images/a.jpg#frag", "OEBPS/images/a.jpg"},
	}
	for _, tc := range cases {
		if got := resolveHref(tc.dir, tc.href); got != tc.want {
			t.Errorf("resolveHref(%q, %q) = %q, want %q", tc.dir, tc.href, got, tc.want)
		}
	}
}

func TestExtractEPUBZeroImages(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "textonly.epub")
	writeZip(t, archive, map[string][]byte{
		"META-INF/container.xml": []byte(testContainerXML),
		"OEBPS/content.opf": []byte(`<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest><item id="p1" href="p1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="p1"/></spine>
</package>`),
		"OEBPS/p1.xhtml": []byte(`<html><body>text only</body></html>`),
	})
	if _, err := Extract(context.Background(), archive, "doc-5", pages.DirectionLeftToRight); err == nil {
		t.Fatal("expected error for epub without images")
	}
	_ = os.Remove(archive)
}
