// Package curriculum loads syllabus templates (protocol -> subjects -> topics)
// from YAML catalog files.
package curriculum

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

const documentSchemaJSON = `{
  "type": "object",
  "required": ["protocol", "subjects"],
  "properties": {
    "protocol": {"type": "string", "minLength": 1},
    "subjects": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "topics"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "topics": {
            "type": "array",
            "items": {
              "anyOf": [
                {"type": "string", "minLength": 1},
                {
                  "type": "object",
                  "properties": {
                    "id": {"type": "string"},
                    "title": {"type": "string", "minLength": 1},
                    "name": {"type": "string", "minLength": 1}
                  },
                  "anyOf": [{"required": ["title"]}, {"required": ["name"]}]
                }
              ]
            }
          }
        }
      }
    }
  }
}`

var compileSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchemaJSON))
})

// ProtocolName normalizes a protocol name: surrounding space trimmed, upper case.
func ProtocolName(raw string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(raw))
}

// Parse validates a catalog file against the document schema and decodes it.
func Parse(data []byte) (Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("parsing catalog: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return Document{}, fmt.Errorf("compiling catalog schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("validating catalog: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Document{}, fmt.Errorf("invalid catalog: %s", strings.Join(msgs, "; "))
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decoding catalog: %w", err)
	}
	doc.Protocol = ProtocolName(doc.Protocol)
	return doc, nil
}

// Builtin returns the catalog shipped with the binary.
func Builtin() (Catalog, error) {
	c := Catalog{}
	if err := c.loadFS(builtinFS, true); err != nil {
		return nil, fmt.Errorf("loading builtin catalog: %w", err)
	}
	return c, nil
}

// Load returns the builtin catalog extended with every catalog file under
// rootDir. Files are applied in lexical path order; subjects from several
// files for the same protocol are appended in that order. Invalid files are
// skipped.
func Load(rootDir string) (Catalog, error) {
	c, err := Builtin()
	if err != nil {
		return nil, err
	}
	if rootDir == "" {
		return c, nil
	}
	if _, err := os.Stat(rootDir); err != nil {
		slog.Warn("catalog directory unavailable, using builtin catalog", "path", rootDir, "error", err)
		return c, nil
	}

	if err := c.loadFS(os.DirFS(rootDir), false); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "path", rootDir, "protocols", len(c))
	return c, nil
}

func (c Catalog) loadFS(fsys fs.FS, strict bool) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch path.Ext(p) {
		case ".yaml", ".yml", ".json":
		default:
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		doc, err := Parse(data)
		if err != nil {
			if strict {
				return fmt.Errorf("%s: %w", p, err)
			}
			slog.Warn("skipping invalid catalog file", "path", p, "error", err)
			return nil
		}
		c.add(doc, p)
		return nil
	})
}

// customPrefix marks subject ids generated for user-created subjects.
const customPrefix = "custom_"

// add appends the subjects of doc. Progress is keyed by subject id alone, so
// an id already used by any protocol, or one in the custom namespace, is
// skipped.
func (c Catalog) add(doc Document, source string) {
	seen := make(map[string]string)
	for protocol, subjects := range c {
		for _, s := range subjects {
			seen[s.ID] = protocol
		}
	}
	for _, entry := range doc.Subjects {
		if strings.HasPrefix(entry.ID, customPrefix) {
			slog.Warn("skipping catalog subject with reserved id",
				"path", source,
				"protocol", doc.Protocol,
				"subject_id", entry.ID,
			)
			continue
		}
		if owner, ok := seen[entry.ID]; ok {
			slog.Warn("skipping duplicate catalog subject",
				"path", source,
				"protocol", doc.Protocol,
				"subject_id", entry.ID,
				"owner", owner,
			)
			continue
		}
		seen[entry.ID] = doc.Protocol
		c[doc.Protocol] = append(c[doc.Protocol], entry.Normalize())
	}
}
