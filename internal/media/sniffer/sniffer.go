package sniffer

import (
	"archive/zip"
	"bytes"
	"errors"
)

type DocumentType string

const (
	TypeDOCX DocumentType = "docx"
	TypePDF  DocumentType = "pdf"
)

const (
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPDF  = "application/pdf"
)

var ErrUnknownType = errors.New("unknown document type")

type Result struct {
	Type DocumentType
	MIME string
}

// Detect identifies a document by its contents rather than by its name.
func Detect(data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrUnknownType
	}

	if isPDF(data) {
		return Result{Type: TypePDF, MIME: MIMEPDF}, nil
	}
	if isDOCX(data) {
		return Result{Type: TypeDOCX, MIME: MIMEDOCX}, nil
	}

	return Result{}, ErrUnknownType
}

func isPDF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("%PDF-"))
}

// isDOCX requires a zip container holding word/document.xml, which rules out
// other OOXML and plain zip archives.
func isDOCX(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return false
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			return true
		}
	}
	return false
}
