package extract

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"path"
	"regexp"
	"strings"

	"comic2kindle/internal/services"
)

type containerXML struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageOPF struct {
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

var srcAttrPattern = regexp.MustCompile(`(?:src|xlink:href)\s*=\s*["']([^"']+)["']`)

// readEPUB collects page images from an EPUB in reading order. Images
// referenced from spine documents come first, in reference order; any
// remaining manifest images follow in natural name order.
func readEPUB(srcPath string) ([]pageEntry, error) {
	reader, err := zip.OpenReader(srcPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "extracting", "open epub", "file is not a readable epub", err)
	}
	defer reader.Close()

	files := make(map[string]*zip.File, len(reader.File))
	for _, file := range reader.File {
		files[file.Name] = file
	}

	opfPath, err := locateOPF(files)
	if err != nil {
		return nil, err
	}
	opfData, err := readZipFile(files[opfPath])
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "extracting", "read opf", "cannot read package document", err)
	}
	var pkg packageOPF
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, services.Wrap(services.ErrValidation, "extracting", "parse opf", "malformed package document", err)
	}

	opfDir := path.Dir(opfPath)
	byID := make(map[string]opfItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		byID[item.ID] = item
	}

	// Walk spine documents and record image references in order.
	seen := make(map[string]bool)
	var ordered []string
	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := byID[ref.IDRef]
		if !ok || !strings.Contains(item.MediaType, "html") {
			continue
		}
		docPath := resolveHref(opfDir, item.Href)
		docFile, ok := files[docPath]
		if !ok {
			continue
		}
		content, err := readZipFile(docFile)
		if err != nil {
			continue
		}
		docDir := path.Dir(docPath)
		for _, match := range srcAttrPattern.FindAllSubmatch(content, -1) {
			imgPath := resolveHref(docDir, string(match[1]))
			if !IsImageName(imgPath) || seen[imgPath] {
				continue
			}
			seen[imgPath] = true
			ordered = append(ordered, imgPath)
		}
	}

	// Manifest images not referenced by any spine document.
	var leftovers []pageEntry
	for _, item := range pkg.Manifest.Items {
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		imgPath := resolveHref(opfDir, item.Href)
		if seen[imgPath] || !IsImageName(imgPath) {
			continue
		}
		file, ok := files[imgPath]
		if !ok {
			continue
		}
		data, err := readZipFile(file)
		if err != nil {
			continue
		}
		seen[imgPath] = true
		leftovers = append(leftovers, pageEntry{name: path.Base(imgPath), data: data})
	}
	sortNatural(leftovers)

	entries := make([]pageEntry, 0, len(ordered)+len(leftovers))
	for _, imgPath := range ordered {
		file, ok := files[imgPath]
		if !ok {
			continue
		}
		data, err := readZipFile(file)
		if err != nil {
			continue
		}
		entries = append(entries, pageEntry{name: path.Base(imgPath), data: data})
	}
	return append(entries, leftovers...), nil
}

func locateOPF(files map[string]*zip.File) (string, error) {
	containerFile, ok := files["META-INF/container.xml"]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "extracting", "locate opf", "epub is missing META-INF/container.xml", nil)
	}
	data, err := readZipFile(containerFile)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "extracting", "locate opf", "cannot read container.xml", err)
	}
	var container containerXML
	if err := xml.Unmarshal(data, &container); err != nil {
		return "", services.Wrap(services.ErrValidation, "extracting", "locate opf", "malformed container.xml", err)
	}
	for _, rootfile := range container.Rootfiles {
		if rootfile.FullPath != "" {
			return rootfile.FullPath, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "extracting", "locate opf", "container.xml names no rootfile", nil)
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// resolveHref joins a relative href onto the directory of its referencing
// document and normalizes the result.
func resolveHref(dir, href string) string {
	href = strings.SplitN(href, "#", 2)[0]
	if dir == "." || dir == "" || strings.HasPrefix(href, "/") {
		return path.Clean(strings.TrimPrefix(href, "/"))
	}
	return path.Clean(path.Join(dir, href))
}
