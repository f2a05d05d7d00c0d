package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// LoadError reports a migration file that could not be read.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.File != "" {
		return e.File + ": " + e.Message
	}
	return e.Message
}

// ReadYAML decodes every YAML document of r as one set.
func ReadYAML(r io.Reader) ([]Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sets []Set
	for {
		var s Set
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			return sets, nil
		}
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
}

// LoadYAMLFile reads the sets of one YAML file.
func LoadYAMLFile(path string) ([]Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	defer f.Close()
	sets, err := ReadYAML(f)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return sets, nil
}

// LoadCUE reads the CUE package in dir. Every field of its top-level
// "migrations" struct is one set; the label is the default name.
//
//	migrations: Auth: steps: [{version: 1, tables: [...]}]
func LoadCUE(dir string) ([]Set, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{File: dir, Message: "no CUE instances loaded"}
	}
	if err := instances[0].Err; err != nil {
		return nil, cueError(dir, err)
	}
	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, cueError(dir, err)
	}
	return decodeCUE(dir, value)
}

// CompileCUE reads sets from CUE source text.
func CompileCUE(filename, src string) ([]Set, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, cueError(filename, err)
	}
	return decodeCUE(filename, value)
}

func decodeCUE(origin string, value cue.Value) ([]Set, error) {
	migrations := value.LookupPath(cue.ParsePath("migrations"))
	if !migrations.Exists() {
		return nil, &LoadError{File: origin, Message: "no migrations struct", Pos: value.Pos()}
	}
	iter, err := migrations.Fields()
	if err != nil {
		return nil, cueError(origin, err)
	}
	var sets []Set
	for iter.Next() {
		v := iter.Value()
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, cueError(origin, err)
		}
		// ColumnType accepts its short form through UnmarshalJSON.
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, cueError(origin, err)
		}
		var s Set
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &LoadError{File: origin, Message: fmt.Sprintf("migrations.%s: %v", iter.Selector(), err), Pos: v.Pos()}
		}
		if s.Name == "" {
			s.Name = iter.Selector().Unquoted()
		}
		sets = append(sets, s)
	}
	return sets, nil
}

// cueError keeps the position of the first CUE error.
func cueError(origin string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: origin, Message: err.Error()}
	}
	le := &LoadError{File: origin, Message: errs[0].Error()}
	if pos := cueerrors.Positions(errs[0]); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}

// LoadDir registers every set found in dir: each *.yaml and *.yml file,
// plus the CUE package when dir holds *.cue files.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &LoadError{File: dir, Message: err.Error()}
	}
	var sets []Set
	hasCUE := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			loaded, err := LoadYAMLFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return err
			}
			sets = append(sets, loaded...)
		case ".cue":
			hasCUE = true
		}
	}
	if hasCUE {
		loaded, err := LoadCUE(dir)
		if err != nil {
			return err
		}
		sets = append(sets, loaded...)
	}
	if len(sets) == 0 {
		return &LoadError{File: dir, Message: "no migration sets found"}
	}
	slices.SortStableFunc(sets, func(a, b Set) int { return strings.Compare(a.Name, b.Name) })
	for _, s := range sets {
		if err := c.Register(s); err != nil {
			return err
		}
	}
	return nil
}
