// Package fs reads pre-extracted legal documents from a directory tree.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"legalrag/internal/domain"
	"legalrag/internal/port"
)

// SidecarSuffix names the optional metadata file stored next to a document:
// briefs/motion.txt is described by briefs/motion.meta.yaml.
const SidecarSuffix = ".meta.yaml"

var _ port.DocumentSource = (*DirectorySource)(nil)

// DirectorySource serves .txt, .md and extracted-element .json files below a
// root directory. The document ID is the slash-separated relative path
// without its extension.
type DirectorySource struct {
	root   string
	walker *Walker
}

func NewDirectorySource(root string, includes, excludes []string) *DirectorySource {
	return &DirectorySource{
		root:   root,
		walker: NewWalker(includes, append([]string{"**/*" + SidecarSuffix}, excludes...)),
	}
}

func (s *DirectorySource) List(ctx context.Context) ([]port.DocumentRef, error) {
	files, err := s.walker.Walk(ctx, s.root)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}

	seen := make(map[string]string, len(files))
	refs := make([]port.DocumentRef, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !supported(f.RelPath) {
			continue
		}
		id := documentID(f.RelPath)
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("files %s and %s map to the same document id %q", prev, f.RelPath, id)
		}
		seen[id] = f.RelPath
		refs = append(refs, port.DocumentRef{
			ID:      id,
			Path:    f.Path,
			ModTime: f.ModTime,
			Size:    f.Size,
		})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (s *DirectorySource) Load(ctx context.Context, ref port.DocumentRef) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}

	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reading %s: %w", ref.Path, err)
	}

	var text string
	switch strings.ToLower(filepath.Ext(ref.Path)) {
	case ".md", ".markdown":
		text = markdownToText(data)
	case ".json":
		if text, err = elementsToText(data); err != nil {
			return domain.Document{}, fmt.Errorf("parsing %s: %w", ref.Path, err)
		}
	default:
		text = string(data)
	}

	meta, err := readSidecar(strings.TrimSuffix(ref.Path, filepath.Ext(ref.Path)) + SidecarSuffix)
	if err != nil {
		return domain.Document{}, err
	}

	return domain.Document{
		ID:       ref.ID,
		Filename: filepath.Base(ref.Path),
		Text:     text,
		Metadata: meta,
		ModTime:  ref.ModTime,
	}, nil
}

func supported(relPath string) bool {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".txt", ".md", ".markdown", ".json":
		return true
	}
	return false
}

func documentID(relPath string) string {
	return strings.TrimSuffix(relPath, path.Ext(relPath))
}

type sidecar struct {
	CaseName     string            `yaml:"case_name"`
	Date         string            `yaml:"date"`
	DocumentType string            `yaml:"document_type"`
	Page         int               `yaml:"page"`
	Extra        map[string]string `yaml:"extra"`
}

// readSidecar loads document metadata. A missing sidecar yields empty metadata.
func readSidecar(p string) (domain.Metadata, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Metadata{}, nil
	}
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("reading metadata %s: %w", p, err)
	}

	var sc sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return domain.Metadata{}, fmt.Errorf("parsing metadata %s: %w", p, err)
	}

	meta := domain.Metadata{
		CaseName:     sc.CaseName,
		DocumentType: sc.DocumentType,
		Page:         sc.Page,
		Extra:        sc.Extra,
	}
	if sc.Date != "" {
		meta.Date, err = time.Parse("2006-01-02", sc.Date)
		if err != nil {
			return domain.Metadata{}, fmt.Errorf("metadata %s: date must be YYYY-MM-DD: %w", p, err)
		}
	}
	return meta, nil
}

// element is one extracted text element, as written by layout-aware PDF
// extraction pipelines.
type element struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"`
}

// elementsToText joins elements with blank lines. Page changes become form
// feeds, one per page advanced, so the n-th page follows n-1 form feeds.
func elementsToText(data []byte) (string, error) {
	var elements []element
	if err := json.Unmarshal(data, &elements); err != nil {
		return "", err
	}

	var b strings.Builder
	page := 1
	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}
		switch {
		case el.PageNumber > page:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(strings.Repeat("\f", el.PageNumber-page))
			page = el.PageNumber
		case b.Len() > 0:
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
