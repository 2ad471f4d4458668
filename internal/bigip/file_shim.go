package bigip

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/mhodges/bigip-rule-manager/internal/domain"
)

// FileShim is a DeviceClient that keeps the "device" state in a local JSON
// file. It stands in for a real appliance in tests and offline use.
type FileShim struct {
	filePath string
	mu       sync.Mutex
}

// Ensure FileShim implements DeviceClient.
var _ DeviceClient = (*FileShim)(nil)

// NewFileShim creates a new file-backed shim.
func NewFileShim(filePath string) *FileShim {
	return &FileShim{filePath: filePath}
}

// Login is a no-op for the shim.
func (f *FileShim) Login(ctx context.Context) error { return nil }

// Logout is a no-op for the shim.
func (f *FileShim) Logout(ctx context.Context) {}

func shimKey(module domain.TrafficModule, partition, name string) string {
	return fmt.Sprintf("%s/%s/%s", module, partition, name)
}

// load reads the rule map from the file. A missing file is an empty device.
func (f *FileShim) load() (map[string]string, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading shim file: %w", err)
	}
	rules := map[string]string{}
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing shim file: %w", err)
	}
	return rules, nil
}

func (f *FileShim) save(rules map[string]string) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling shim state: %w", err)
	}
	if err := os.WriteFile(f.filePath, data, 0644); err != nil {
		return fmt.Errorf("writing shim file: %w", err)
	}
	return nil
}

// Exists reports whether the rule is present in the file.
func (f *FileShim) Exists(ctx context.Context, module domain.TrafficModule, partition, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules, err := f.load()
	if err != nil {
		return false, err
	}
	_, ok := rules[shimKey(module, partition, name)]
	return ok, nil
}

// Fetch reads the rule from the file.
func (f *FileShim) Fetch(ctx context.Context, module domain.TrafficModule, partition, name string) (*domain.RemoteRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules, err := f.load()
	if err != nil {
		return nil, err
	}
	content, ok := rules[shimKey(module, partition, name)]
	if !ok {
		return nil, &DeviceError{Method: "GET", Path: ruleItemPath(module, partition, name), StatusCode: 404, Message: "not found"}
	}
	return &domain.RemoteRule{
		Name:      name,
		Partition: partition,
		FullPath:  "/" + partition + "/" + name,
		Content:   content,
	}, nil
}

// Create adds the rule to the file.
func (f *FileShim) Create(ctx context.Context, module domain.TrafficModule, partition, name, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules, err := f.load()
	if err != nil {
		return err
	}
	key := shimKey(module, partition, name)
	if _, ok := rules[key]; ok {
		return &DeviceError{Method: "POST", Path: ruleCollectionPath(module), StatusCode: 409, Message: "object already exists"}
	}
	rules[key] = content
	if err := f.save(rules); err != nil {
		return err
	}
	log.Printf("[FileShim] Created %s in %s", key, f.filePath)
	return nil
}

// Update replaces the rule body in the file.
func (f *FileShim) Update(ctx context.Context, module domain.TrafficModule, partition, name, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules, err := f.load()
	if err != nil {
		return err
	}
	key := shimKey(module, partition, name)
	if _, ok := rules[key]; !ok {
		return &DeviceError{Method: "PATCH", Path: ruleItemPath(module, partition, name), StatusCode: 404, Message: "not found"}
	}
	rules[key] = content
	return f.save(rules)
}

// Delete removes the rule from the file.
func (f *FileShim) Delete(ctx context.Context, module domain.TrafficModule, partition, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules, err := f.load()
	if err != nil {
		return err
	}
	key := shimKey(module, partition, name)
	if _, ok := rules[key]; !ok {
		return &DeviceError{Method: "DELETE", Path: ruleItemPath(module, partition, name), StatusCode: 404, Message: "not found"}
	}
	delete(rules, key)
	return f.save(rules)
}
