package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LedFS is an Afero FS with added functionality
// to replicate OS filesystems in testing
type LedFS interface {
	afero.Fs
	Abs(string) (string, error)
	HomeDir() (string, error)
}

type ledOSFS struct {
	afero.Fs
}

func newLedOSFS() LedFS {
	return &ledOSFS{
		afero.NewOsFs(),
	}
}

func (g *ledOSFS) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

func (g *ledOSFS) HomeDir() (string, error) {
	return os.UserHomeDir()
}

type ledMemFS struct {
	afero.Fs
}

func NewLedMemFS() LedFS {
	return &ledMemFS{
		afero.NewMemMapFs(),
	}
}

func (g *ledMemFS) Abs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Join("/", path), nil
}

func (g *ledMemFS) HomeDir() (string, error) {
	return "/home/pi", nil
}
