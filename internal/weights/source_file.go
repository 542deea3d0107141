package weights

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

// FileSource reads <dir>/<category>/weights.{json,yaml,yml} and the matching
// buckets.{json,yaml,yml} document. A missing buckets document falls back to
// the default order; a missing weights document is ErrNotProvisioned.
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

var documentExts = []string{".json", ".yaml", ".yml"}

func (s *FileSource) Load(ctx context.Context, category bucket.Category) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := filepath.Join(s.Dir, string(category))

	weightsDoc, found, err := readDocument(base, "weights")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotProvisioned, "no weights document under %s", base)
	}
	bucketsDoc, _, err := readDocument(base, "buckets")
	if err != nil {
		return nil, err
	}
	return tableFromDocuments(category, weightsDoc, bucketsDoc)
}

// readDocument decodes the first existing <dir>/<name><ext>.
func readDocument(dir, name string) (map[string]interface{}, bool, error) {
	for _, ext := range documentExts {
		path := filepath.Join(dir, name+ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, false, errors.Wrapf(err, "read %s", path)
		}
		doc := map[string]interface{}{}
		if ext == ".json" {
			err = json.Unmarshal(data, &doc)
		} else {
			err = yaml.Unmarshal(data, &doc)
		}
		if err != nil {
			return nil, false, errors.Wrapf(ErrInvalidTable, "decode %s: %v", path, err)
		}
		return doc, true, nil
	}
	return nil, false, nil
}
