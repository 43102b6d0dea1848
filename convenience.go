package ps2mc

import (
	"io"
	"os"
	"strings"

	ps2dirent "github.com/dargueta/ps2mc/dirent"
)

// Stat returns the directory entry named by path, the same information
// GetDirent returns, under the more familiar stdlib-flavored name used by
// _examples/dargueta-disko's own ObjectHandle.Stat.
func (e *Engine) Stat(path string) (*ps2dirent.Dirent, error) {
	return e.GetDirent(path)
}

// ReadDir lists every entry in the directory named by path, skipping
// deleted (non-existent) slots but including "." and "..", mirroring
// _examples/dargueta-disko's ObjectHandle.ListDir.
func (e *Engine) ReadDir(path string) ([]*ps2dirent.Dirent, error) {
	dir, err := e.DirOpen(path)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	all, err := dir.All()
	if err != nil {
		return nil, err
	}

	entries := make([]*ps2dirent.Dirent, 0, len(all))
	for _, ent := range all {
		if ps2dirent.IsExists(ent.Mode) {
			entries = append(entries, ent)
		}
	}
	return entries, nil
}

// iconSysPath joins a directory path with the fixed icon.sys filename,
// tolerating a trailing slash.
func iconSysPath(dirPath string) string {
	if strings.HasSuffix(dirPath, "/") {
		return dirPath + "icon.sys"
	}
	return dirPath + "/icon.sys"
}

// IconSys reads the fixed-name icon.sys entry of the save directory named
// by dirPath, returning its raw bytes. Grounded on scenario 10 of the
// original spec's get_icon_sys test, which only exercises reading the file
// as an opaque blob; no icon geometry parsing is attempted here, matching
// that scenario's own scope.
func (e *Engine) IconSys(dirPath string) ([]byte, error) {
	h, err := e.OpenFile(iconSysPath(dirPath), os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return io.ReadAll(h)
}

// SetIconSys writes data as the icon.sys entry of the save directory named
// by dirPath, creating or truncating it as needed.
func (e *Engine) SetIconSys(dirPath string, data []byte) error {
	h, err := e.OpenFile(iconSysPath(dirPath), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := h.Write(data); err != nil {
		h.Close()
		return err
	}
	return h.Close()
}
