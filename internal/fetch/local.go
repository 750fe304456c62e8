package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go-report-etl/internal/model"
	"go-report-etl/pkg/utils"
)

// localPath copies one existing file into the job's destination, renamed
// through the naming policy with its stem and extension preserved.
type localPath struct {
	opts Options
}

func newLocalPath(opts Options) (*localPath, error) {
	if opts.Spec.LocalFullPath == "" {
		return nil, model.Configf("localpath requires local_fullpath")
	}
	return &localPath{opts: opts}, nil
}

func (l *localPath) Fetch(ctx context.Context) ([]string, error) {
	src := l.opts.Spec.LocalFullPath
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return nil, &model.NotFoundError{Resource: "file " + src}
	}

	now, err := l.opts.jobNow()
	if err != nil {
		return nil, err
	}

	dst := l.opts.naming().BuildPath(utils.Stem(src), utils.Ext(src), now)
	if err := utils.CopyFile(src, dst); err != nil {
		return nil, fmt.Errorf("copying %s: %w", src, err)
	}
	l.opts.Log.Debug().Str("src", src).Str("dst", dst).Msg("copied local file")
	return []string{dst}, nil
}

// localFolder copies every regular file of a directory, non-recursively,
// each renamed through the naming policy.
type localFolder struct {
	opts Options
}

func newLocalFolder(opts Options) (*localFolder, error) {
	if opts.Spec.LocalFullPath == "" {
		return nil, model.Configf("localfolder requires local_fullpath")
	}
	return &localFolder{opts: opts}, nil
}

func (l *localFolder) Fetch(ctx context.Context) ([]string, error) {
	dir := l.opts.Spec.LocalFullPath
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &model.NotFoundError{Resource: "folder " + dir}
	}

	now, err := l.opts.jobNow()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	policy := l.opts.naming()
	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		src := filepath.Join(dir, entry.Name())
		dst := policy.BuildPath(utils.Stem(entry.Name()), utils.Ext(entry.Name()), now)
		if err := utils.CopyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copying %s: %w", src, err)
		}
		out = append(out, dst)
	}
	l.opts.Log.Debug().Str("dir", dir).Int("files", len(out)).Msg("copied local folder")
	return out, nil
}
