package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/language"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

const (
	compileDirName = "compile"
	inputName      = "input.txt"
	outputName     = "output.txt"
	compileLogName = "compile.log"
	compileOutName = "compile.out"
	runtimeLogName = "runtime.log"
)

// workspace lays out host directories under one root: <root>/<submission>/<test>.
type workspace struct {
	root string
}

func (w workspace) submissionDir(submissionID string) (string, error) {
	if submissionID == "" || strings.ContainsAny(submissionID, `/\`) || submissionID == "." || submissionID == ".." {
		return "", appErr.ValidationError("submission_id", "invalid")
	}
	return filepath.Join(w.root, submissionID), nil
}

func (w workspace) dir(submissionID, name string) (string, error) {
	base, err := w.submissionDir(submissionID)
	if err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", appErr.ValidationError("test_id", "invalid")
	}
	return filepath.Join(base, name), nil
}

func freshDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "clear work dir failed")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create work dir failed")
	}
	return nil
}

func writeSourceFiles(dir string, files []language.SourceFile) error {
	for _, f := range files {
		if f.Name == "" || filepath.Base(f.Name) != f.Name {
			return appErr.ValidationError("source_file_name", "invalid")
		}
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Content, 0644); err != nil {
			return appErr.Wrapf(err, appErr.JudgeSystemError, "write source failed")
		}
	}
	return nil
}

// unitFiles lists the regular files a compile step left behind, minus its logs.
func unitFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "list compile dir failed")
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		switch entry.Name() {
		case compileLogName, compileOutName:
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

func copyUnit(unit *Unit, dst string) error {
	for _, name := range unit.Files {
		if err := copyFile(filepath.Join(unit.Dir, name), filepath.Join(dst, name)); err != nil {
			return appErr.Wrapf(err, appErr.JudgeSystemError, "copy unit file %s failed", name)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func caseDirName(testID string) string {
	return fmt.Sprintf("run-%s", testID)
}
