package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

const jsonBootstrapPath = "bootstrap.json"

// JSONBootstrap provides the list of rendezvous addresses in the form of a
// JSON file. This allows human operators to manipulate the file.
type JSONBootstrap struct {
	l    sync.Mutex
	path string
}

// NewJSONBootstrap creates a new JSONBootstrap store under the base
// directory.
func NewJSONBootstrap(base string) *JSONBootstrap {
	return &JSONBootstrap{
		path: filepath.Join(base, jsonBootstrapPath),
	}
}

// Addrs reads the configured rendezvous addresses. A missing file is not an
// error; it simply means there is nothing to dial.
func (j *JSONBootstrap) Addrs() ([]string, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	var addrs []string
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&addrs); err != nil {
		return nil, err
	}

	return addrs, nil
}

// Write persists the list of rendezvous addresses.
func (j *JSONBootstrap) Write(addrs []string) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(addrs); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0755)
}
