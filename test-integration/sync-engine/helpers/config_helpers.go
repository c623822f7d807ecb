package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/onsi/gomega"
)

// WriteConfigYAML writes a device configuration using sqlite storage under dir and
// the given sync server URL. It returns the path of the written file.
func WriteConfigYAML(dir, serverURL string) string {
	content := fmt.Sprintf(`deviceName: integration-test
remote:
  baseURL: %s
  timeout: 5s
  maxRetries: 1
storage:
  type: sqlite
  sqlite:
    path: %s
statusDir: %s
schedule:
  pollInterval: 1h
recordTypes:
  - name: patients
    batchSize: 2
  - name: facilities
    syncInterval: DAILY
    requiresApprovedUser: true
logging:
  level: debug
`, serverURL, filepath.Join(dir, "device.db"), filepath.Join(dir, "status"))

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
	return path
}
