package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ahinestrog/bookshop/Frontend/src/state"
)

var (
	userConfigDir = os.UserConfigDir
	openStore     = state.OpenSQLiteStore
)

// statePath is where guest state and the login token live. BOOKSHOP_STATE
// overrides it.
func statePath() (string, error) {
	if p := os.Getenv("BOOKSHOP_STATE"); p != "" {
		return p, nil
	}
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bookshop", "state.db"), nil
}

func buildDependencies() (Dependencies, io.Closer, error) {
	path, err := statePath()
	if err != nil {
		return Dependencies{}, nil, err
	}
	store, err := openStore(path)
	if err != nil {
		return Dependencies{}, nil, err
	}
	return Dependencies{
		Out:   os.Stdout,
		Err:   os.Stderr,
		Local: store,
	}, store, nil
}
