package workflow

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"comfybridge/internal/pkg/errors"
)

// Source loads workflow templates by name. Each Load returns a fresh graph
// the caller owns.
type Source interface {
	Load(ctx context.Context, name string) (Graph, error)
	List(ctx context.Context) ([]Info, error)
}

// Info describes a selectable workflow.
type Info struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidName rejects names that could escape the template directory.
func ValidName(name string) bool {
	return namePattern.MatchString(name) && !strings.Contains(name, "..")
}

// DirSource reads <dir>/<name>.json.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Load(_ context.Context, name string) (Graph, error) {
	if !ValidName(name) {
		return nil, errors.ValidationField("workflow", "invalid workflow name: "+name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("workflow", name)
		}
		return nil, errors.Wrap(err, "workflow.load", "read workflow "+name)
	}
	return Parse(name, data)
}

func (s *DirSource) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, errors.Wrap(err, "workflow.list", "read workflow directory")
	}

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if !ValidName(name) {
			continue
		}
		info := Info{Name: name}
		if fi, err := e.Info(); err == nil {
			mod := fi.ModTime().UTC()
			info.UpdatedAt = &mod
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
