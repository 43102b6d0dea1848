// Package importexport bulk-copies a save between an in-memory
// archive.SaveFile and a live directory tree on a mounted memory card
// image, grounded on original_source/ps2mc.py's import_save_file/
// export_save_file.
package importexport

import (
	"io"
	"os"

	"github.com/dargueta/ps2mc"
	"github.com/dargueta/ps2mc/archive"
)

// Import creates dirPath on e and populates it with every file in sf. If
// any step fails partway through, Import removes whatever it managed to
// create before returning the error, so a failed import never leaves a
// half-written save directory behind.
func Import(e *ps2mc.Engine, dirPath string, sf *archive.SaveFile) (err error) {
	if err := archive.ValidateFiles(sf.Files); err != nil {
		return err
	}

	if err := e.Mkdir(dirPath); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			e.Rmdir(dirPath)
		}
	}()

	mode := &sf.Dirent.Mode
	created := &sf.Dirent.Created
	modified := &sf.Dirent.Modified
	if _, err = e.SetDirent(dirPath, ps2mc.DirentUpdate{Mode: mode, Created: created, Modified: modified}); err != nil {
		return err
	}

	for _, f := range sf.Files {
		filePath := joinPath(dirPath, f.Dirent.Name)

		h, ferr := e.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if ferr != nil {
			err = ferr
			return err
		}
		_, werr := h.Write(f.Data)
		cerr := h.Close()
		if werr != nil {
			err = werr
			return err
		}
		if cerr != nil {
			err = cerr
			return err
		}

		fileMode := f.Dirent.Mode
		fileCreated := f.Dirent.Created
		fileModified := f.Dirent.Modified
		if _, err = e.SetDirent(filePath, ps2mc.DirentUpdate{Mode: &fileMode, Created: &fileCreated, Modified: &fileModified}); err != nil {
			return err
		}
	}

	return nil
}

// Export reads the directory named by dirPath on e into a SaveFile, in the
// order ReadDir reports the entries, skipping "." and "..".
func Export(e *ps2mc.Engine, dirPath string) (*archive.SaveFile, error) {
	dirEnt, err := e.Stat(dirPath)
	if err != nil {
		return nil, err
	}

	entries, err := e.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	sf := &archive.SaveFile{Dirent: dirEnt}
	for _, ent := range entries {
		if ent.Name == "." || ent.Name == ".." {
			continue
		}

		filePath := joinPath(dirPath, ent.Name)
		h, err := e.OpenFile(filePath, os.O_RDONLY)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(h)
		closeErr := h.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}

		entCopy := *ent
		sf.Files = append(sf.Files, archive.File{Dirent: &entCopy, Data: data})
	}
	dirEnt.Length = uint32(len(sf.Files))

	return sf, nil
}

func joinPath(dirPath, name string) string {
	if len(dirPath) > 0 && dirPath[len(dirPath)-1] == '/' {
		return dirPath + name
	}
	return dirPath + "/" + name
}
