package assembly

import (
	"archive/zip"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"comic2kindle/internal/pages"
	"comic2kindle/internal/planner"
)

// EPUBOptions carries the device geometry recorded in the package metadata.
type EPUBOptions struct {
	TargetWidth  int
	TargetHeight int
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const pageCSS = `@page {
margin: 0;
}
body {
display: block;
margin: 0;
padding: 0;
background-color: #000000;
}
div {
text-align: center;
}
`

// WriteEPUB packages one planned volume as a fixed-layout EPUB at path.
// The mimetype entry is stored uncompressed as the first zip entry, which
// readers require.
func WriteEPUB(path string, volume *planner.Volume, meta Metadata, totalVolumes int, opts EPUBOptions) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	defer file.Close()

	zw := zip.NewWriter(file)

	mimetype, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("write mimetype: %w", err)
	}
	if _, err := mimetype.Write([]byte("application/epub+zip")); err != nil {
		return fmt.Errorf("write mimetype: %w", err)
	}

	entries := map[string][]byte{
		"META-INF/container.xml": []byte(containerXML),
		"OEBPS/style/main.css":   []byte(pageCSS),
	}

	cover := meta.Cover
	if len(cover) == 0 && len(volume.Pages) > 0 {
		cover = volume.Pages[0].Data
	}
	entries["OEBPS/images/cover.jpg"] = cover

	for i, page := range volume.Pages {
		num := i + 1
		entries[fmt.Sprintf("OEBPS/images/page_%04d.jpg", num)] = page.Data
		entries[fmt.Sprintf("OEBPS/page_%04d.xhtml", num)] = pageXHTML(num, page, opts)
	}

	title := meta.VolumeTitle(volume.Index, totalVolumes)
	identifier := uuid.NewString()
	entries["OEBPS/content.opf"] = packageOPF(volume, meta, title, identifier, opts)
	entries["OEBPS/nav.xhtml"] = navDocument(title, len(volume.Pages))
	entries["OEBPS/toc.ncx"] = ncxDocument(title, identifier, len(volume.Pages))

	// Deterministic entry order: container first, then the package
	// document, then content.
	order := []string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/nav.xhtml", "OEBPS/toc.ncx", "OEBPS/style/main.css", "OEBPS/images/cover.jpg"}
	for i := 1; i <= len(volume.Pages); i++ {
		order = append(order,
			fmt.Sprintf("OEBPS/page_%04d.xhtml", i),
			fmt.Sprintf("OEBPS/images/page_%04d.jpg", i))
	}
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := w.Write(entries[name]); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize epub: %w", err)
	}
	return file.Close()
}

func pageXHTML(num int, page *pages.Page, opts EPUBOptions) []byte {
	width, height := page.Width, page.Height
	if width <= 0 || height <= 0 {
		width, height = opts.TargetWidth, opts.TargetHeight
	}
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
<title>Page %d</title>
<link href="style/main.css" type="text/css" rel="stylesheet"/>
<meta name="viewport" content="width=%d, height=%d"/>
</head>
<body>
<div>
<img width="%d" height="%d" src="images/page_%04d.jpg" alt="Page %d"/>
</div>
</body>
</html>
`, num, width, height, width, height, num, num))
}

func packageOPF(volume *planner.Volume, meta Metadata, title, identifier string, opts EPUBOptions) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid" prefix="rendition: http://www.idpf.org/vocab/rendition/#">` + "\n")

	b.WriteString(`  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">` + "\n")
	fmt.Fprintf(&b, "    <dc:identifier id=\"uid\">urn:uuid:%s</dc:identifier>\n", identifier)
	fmt.Fprintf(&b, "    <dc:title>%s</dc:title>\n", xmlEscape(title))
	language := meta.Language
	if language == "" {
		language = "en"
	}
	fmt.Fprintf(&b, "    <dc:language>%s</dc:language>\n", xmlEscape(language))
	if meta.Author != "" {
		fmt.Fprintf(&b, "    <dc:creator>%s</dc:creator>\n", xmlEscape(meta.Author))
	}
	if meta.Description != "" {
		fmt.Fprintf(&b, "    <dc:description>%s</dc:description>\n", xmlEscape(meta.Description))
	}
	if meta.Series != "" {
		fmt.Fprintf(&b, "    <meta name=\"calibre:series\" content=\"%s\"/>\n", xmlEscape(meta.Series))
		if meta.SeriesIndex > 0 {
			fmt.Fprintf(&b, "    <meta name=\"calibre:series_index\" content=\"%d\"/>\n", meta.SeriesIndex)
		}
	}
	// Kindle fixed-layout hints.
	b.WriteString("    <meta name=\"fixed-layout\" content=\"true\"/>\n")
	fmt.Fprintf(&b, "    <meta name=\"original-resolution\" content=\"%dx%d\"/>\n", opts.TargetWidth, opts.TargetHeight)
	b.WriteString("    <meta name=\"book-type\" content=\"comic\"/>\n")
	b.WriteString("    <meta name=\"zero-gutter\" content=\"true\"/>\n")
	b.WriteString("    <meta name=\"zero-margin\" content=\"true\"/>\n")
	b.WriteString("    <meta name=\"cover\" content=\"cover-image\"/>\n")
	b.WriteString("    <meta property=\"rendition:layout\">pre-paginated</meta>\n")
	b.WriteString("    <meta property=\"rendition:spread\">landscape</meta>\n")
	b.WriteString("  </metadata>\n")

	b.WriteString("  <manifest>\n")
	b.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	b.WriteString(`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")
	b.WriteString(`    <item id="css" href="style/main.css" media-type="text/css"/>` + "\n")
	b.WriteString(`    <item id="cover-image" href="images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>` + "\n")
	for i := 1; i <= len(volume.Pages); i++ {
		fmt.Fprintf(&b, "    <item id=\"page_%04d\" href=\"page_%04d.xhtml\" media-type=\"application/xhtml+xml\"/>\n", i, i)
		fmt.Fprintf(&b, "    <item id=\"image_%04d\" href=\"images/page_%04d.jpg\" media-type=\"image/jpeg\"/>\n", i, i)
	}
	b.WriteString("  </manifest>\n")

	if volume.Direction == pages.DirectionRightToLeft {
		b.WriteString(`  <spine toc="ncx" page-progression-direction="rtl">` + "\n")
	} else {
		b.WriteString(`  <spine toc="ncx">` + "\n")
	}
	for i := 1; i <= len(volume.Pages); i++ {
		fmt.Fprintf(&b, "    <itemref idref=\"page_%04d\"/>\n", i)
	}
	b.WriteString("  </spine>\n")
	b.WriteString("</package>\n")
	return []byte(b.String())
}

func navDocument(title string, pageCount int) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	fmt.Fprintf(&b, "<head><title>%s</title></head>\n", xmlEscape(title))
	b.WriteString("<body>\n<nav epub:type=\"toc\" id=\"toc\">\n<ol>\n")
	for i := 1; i <= pageCount; i++ {
		fmt.Fprintf(&b, "<li><a href=\"page_%04d.xhtml\">Page %d</a></li>\n", i, i)
	}
	b.WriteString("</ol>\n</nav>\n</body>\n</html>\n")
	return []byte(b.String())
}

func ncxDocument(title, identifier string, pageCount int) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">` + "\n")
	b.WriteString("<head>\n")
	fmt.Fprintf(&b, "<meta name=\"dtb:uid\" content=\"urn:uuid:%s\"/>\n", identifier)
	b.WriteString("<meta name=\"dtb:depth\" content=\"1\"/>\n")
	b.WriteString("</head>\n")
	fmt.Fprintf(&b, "<docTitle><text>%s</text></docTitle>\n", xmlEscape(title))
	b.WriteString("<navMap>\n")
	for i := 1; i <= pageCount; i++ {
		fmt.Fprintf(&b, "<navPoint id=\"nav_%04d\" playOrder=\"%d\"><navLabel><text>Page %d</text></navLabel><content src=\"page_%04d.xhtml\"/></navPoint>\n", i, i, i, i)
	}
	b.WriteString("</navMap>\n</ncx>\n")
	return []byte(b.String())
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
