// Package results archives the Result of a run as gzip-compressed JSON.
package results

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"os"
	"path"
	"time"

	"github.com/m-lab/iperfer/data"
)

// File is the file where we save a Result.
type File struct {
	// Writer is the gzip writer instance
	Writer *gzip.Writer
	// Fp is the underlying file
	Fp *os.File
}

// Path returns the name of the archive for a run of role with the given
// uuid started at t.
func Path(datadir string, role string, uuid string, t time.Time) string {
	t = t.UTC()
	dir := path.Join(datadir, role, t.Format("2006/01/02"))
	return path.Join(dir, "iperfer-"+t.Format("2006-01-02T15:04:05.000000000Z")+"."+uuid+".json.gz")
}

// newFile opens a results file below datadir and returns an error on
// failure.
func newFile(name string) (*File, error) {
	err := os.MkdirAll(path.Dir(name), 0755)
	if err != nil {
		return nil, err
	}
	// With nanosecond precision and a uuid in the name conflicts are
	// unlikely. If they happen, O_EXCL will let us know.
	fp, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	writer, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	return &File{
		Writer: writer,
		Fp:     fp,
	}, nil
}

// Close closes the results file.
func (fp *File) Close() error {
	err := fp.Writer.Close()
	if err != nil {
		fp.Fp.Close()
		return err
	}
	return fp.Fp.Close()
}

// WriteResult writes |result| on the results file.
func (fp *File) WriteResult(result *data.Result) error {
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	b = append(b, byte('\n'))
	_, err = fp.Writer.Write(b)
	return err
}

// Save writes result under datadir and returns the path of the new file.
func Save(datadir string, result *data.Result) (string, error) {
	name := Path(datadir, result.Role.String(), result.UUID, result.StartTime)
	fp, err := newFile(name)
	if err != nil {
		return "", err
	}
	werr := fp.WriteResult(result)
	cerr := fp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return "", err
	}
	return name, nil
}

// Load reads back a Result written by Save.
func Load(name string) (*data.Result, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	r, err := gzip.NewReader(fp)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	result := &data.Result{}
	if err := json.NewDecoder(r).Decode(result); err != nil {
		return nil, err
	}
	return result, nil
}
