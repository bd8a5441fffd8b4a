package loaders

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	drawingNS        = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// docxParagraphs returns the text of every w:p in word/document.xml.
func docxParagraphs(path string) ([]string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			return readParagraphs(file, wordprocessingNS)
		}
	}
	return nil, errors.New("word/document.xml missing")
}

// pptxParagraphs returns the text of every a:p across slides in slide order.
func pptxParagraphs(path string) ([]string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer archive.Close()

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, file := range archive.File {
		m := slidePart.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{number: n, file: file})
	}
	if len(slides) == 0 {
		return nil, errors.New("no slides found")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var paragraphs []string
	for _, s := range slides {
		parts, err := readParagraphs(s.file, drawingNS)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.number, err)
		}
		paragraphs = append(paragraphs, parts...)
	}
	return paragraphs, nil
}

// readParagraphs streams an OOXML part and collects the character data of
// <t> elements grouped by enclosing <p>, both in namespace ns. Tabs and
// breaks inside a paragraph become spaces.
func readParagraphs(file *zip.File, ns string) ([]string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		paragraphs []string
		current    strings.Builder
		depth      int
		inText     bool
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file.Name, err)
		}
		switch el := token.(type) {
		case xml.StartElement:
			if el.Name.Space != ns {
				continue
			}
			switch el.Name.Local {
			case "p":
				depth++
			case "t":
				inText = true
			case "tab", "br":
				if depth > 0 {
					current.WriteByte(' ')
				}
			}
		case xml.EndElement:
			if el.Name.Space != ns {
				continue
			}
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				depth--
				if depth == 0 {
					paragraphs = append(paragraphs, current.String())
					current.Reset()
				}
			}
		case xml.CharData:
			if inText {
				current.Write(el)
			}
		}
	}
	return paragraphs, nil
}
