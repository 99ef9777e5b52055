package hsautoctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/hsauto/hsauto/drivers/console"
)

func lockPath(dir string, t console.Target) string {
	if dir == "" {
		dir = os.TempDir()
	}
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(t.Name)
	return filepath.Join(dir, fmt.Sprintf("hsauto-%s.lock", name))
}

// lockTargets takes an exclusive lock per target so that two runs never drive
// the same console. The returned func releases every lock.
func lockTargets(dir string, targets []console.Target) (func(), error) {
	var locks []*flock.Flock
	release := func() {
		for _, l := range locks {
			l.Unlock()
		}
	}

	for _, t := range targets {
		l := flock.New(lockPath(dir, t))
		ok, err := l.TryLock()
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to lock target %s: %v", t.Name, err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("target %s is being driven by another hsauto run (%s)", t.Name, l.Path())
		}
		locks = append(locks, l)
	}
	return release, nil
}
