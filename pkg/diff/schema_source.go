package diff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stripe/pg-schema-depcy/internal/schema"
)

type SchemaSource interface {
	GetSchema(ctx context.Context) (*schema.Database, error)
}

type fileSchemaSource struct {
	path string
}

// FileSchemaSource returns a SchemaSource that loads the snapshot from a YAML file every time the schema is requested
func FileSchemaSource(path string) SchemaSource {
	return &fileSchemaSource{path: path}
}

func (s *fileSchemaSource) GetSchema(_ context.Context) (*schema.Database, error) {
	return schema.LoadFile(s.path)
}

type (
	yamlDocument struct {
		// content is the YAML snapshot description
		content string
		// file is the name of the file the document was read from
		file string
	}

	yamlSchemaSource struct {
		docs []yamlDocument
	}
)

// DirSchemaSource returns a SchemaSource that returns a schema based on the YAML files of the provided directories.
// The files of all the directories describe one snapshot.
func DirSchemaSource(dirs []string) (SchemaSource, error) {
	var docs []yamlDocument
	for _, dir := range dirs {
		dirDocs, err := getYAMLFromPath(dir)
		if err != nil {
			return &yamlSchemaSource{}, err
		}
		docs = append(docs, dirDocs...)
	}
	return &yamlSchemaSource{docs: docs}, nil
}

// getYAMLFromPath reads all .yaml and .yml files under the given path (including sub-directories) in lexical order
func getYAMLFromPath(path string) ([]yamlDocument, error) {
	var docs []yamlDocument
	if err := filepath.Walk(path, func(path string, entry os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walking path %q: %w", path, err)
		}
		if entry.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
		default:
			return nil
		}

		fileContents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file %q: %w", entry.Name(), err)
		}
		if strings.TrimSpace(string(fileContents)) == "" {
			return nil
		}
		docs = append(docs, yamlDocument{
			content: string(fileContents),
			file:    path,
		})
		return nil
	}); err != nil {
		return nil, err
	}
	return docs, nil
}

// YAMLSchemaSource returns a SchemaSource that returns a schema based on the provided YAML documents
func YAMLSchemaSource(docs ...string) SchemaSource {
	var yamlDocs []yamlDocument
	for _, doc := range docs {
		yamlDocs = append(yamlDocs, yamlDocument{content: doc})
	}
	return &yamlSchemaSource{docs: yamlDocs}
}

func (s *yamlSchemaSource) GetSchema(_ context.Context) (*schema.Database, error) {
	var sb strings.Builder
	for i, doc := range s.docs {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(doc.content)
	}
	db, err := schema.LoadYAML(strings.NewReader(sb.String()))
	if err != nil {
		var files []string
		for _, doc := range s.docs {
			if doc.file != "" {
				files = append(files, doc.file)
			}
		}
		if len(files) > 0 {
			return nil, fmt.Errorf("loading %s: %w", strings.Join(files, ", "), err)
		}
		return nil, err
	}
	return db, nil
}

type databaseSchemaSource struct {
	db *schema.Database
}

// DatabaseSchemaSource returns a SchemaSource over a snapshot built in memory. Plan generation never mutates it.
func DatabaseSchemaSource(db *schema.Database) SchemaSource {
	return &databaseSchemaSource{db: db}
}

func (s *databaseSchemaSource) GetSchema(_ context.Context) (*schema.Database, error) {
	return s.db.Copy(), nil
}
