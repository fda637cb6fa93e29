package io

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// create file with its parent direcrtory, if missing.
//
// args:
//   - name: filepath to be created.
//   - fmod: os.FileMode for file.
//   - dmod: os.FileMode for directory.
//
// Note that `dmod` effects to only newly-created direcotries.
// So, directoreis which have existed are not effected with `dmod`.
//
// return (*os.File, err):
//   When a file is created successfully, `(file, nil)` pair will be returned.
//   Or, if it failed creating one of file or direcories, `(nil, err)` pair will be returned.
//
func CreateAll(name string, fmod os.FileMode, dmod os.FileMode) (*os.File, error) {

	dirname := filepath.Dir(name)
	if err := os.MkdirAll(dirname, dmod); err != nil {
		return nil, err
	}

	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fmod)
}

// copy directory `src` into `dest`, recursively.
//
// Files in `dest` sharing names with ones in `src` are overwritten.
// File modes are copied as they are in `src`.
func DirCopy(src string, dest string) error {
	return fs.WalkDir(os.DirFS(src), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		target := filepath.Join(dest, path)
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}

		from, err := os.Open(filepath.Join(src, path))
		if err != nil {
			return err
		}
		defer from.Close()

		to, err := CreateAll(target, info.Mode().Perm(), 0755)
		if err != nil {
			return err
		}
		defer to.Close()

		_, err = io.Copy(to, from)
		return err
	})
}
