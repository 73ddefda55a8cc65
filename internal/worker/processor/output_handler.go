package processor

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"

	"comfybridge/internal/pkg/errors"
	"comfybridge/internal/ports"
)

type OutputHandler struct {
	sp ports.StorageProvider
}

func NewOutputHandler(sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{sp: sp}
}

// Resolve turns the job's output.mp4 into a Result. With keepOnVolume the
// file is handed to the durable store and its location returned, otherwise
// the bytes are returned inline as base64.
func (oh *OutputHandler) Resolve(ctx context.Context, jobID, workDir string, keepOnVolume bool) (*Result, error) {
	const op = "processor.output"

	path := filepath.Join(workDir, OutputFileName)
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.CodeOutputMissing, op, err, "engine produced no output").WithField("path", path)
		}
		return nil, errors.E(errors.CodeInternal, op, err, "stat output")
	}
	if st.IsDir() || st.Size() == 0 {
		return nil, errors.New(errors.CodeOutputMissing, "engine produced an empty output").WithField("path", path)
	}

	if keepOnVolume {
		out, err := oh.persist(ctx, jobID, path, st.Size())
		if err != nil {
			return nil, err
		}
		return &Result{VideoPath: out.Location}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(errors.CodeInternal, op, err, "read output")
	}
	return &Result{VideoBase64: base64.StdEncoding.EncodeToString(data)}, nil
}

func (oh *OutputHandler) persist(ctx context.Context, jobID, path string, size int64) (ports.PutObjectOutput, error) {
	const op = "processor.output.persist"

	if oh.sp == nil {
		return ports.PutObjectOutput{}, errors.New(errors.CodeInternal, "no durable store configured")
	}
	key := jobID + ".mp4"

	if mover, ok := oh.sp.(ports.FileMover); ok {
		out, err := mover.MoveFile(ctx, path, key)
		if err != nil {
			return out, errors.E(errors.CodeInternal, op, err, "move output to "+oh.sp.Provider())
		}
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return ports.PutObjectOutput{}, errors.E(errors.CodeInternal, op, err, "open output")
	}
	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "video/mp4",
		Reader:      f,
		Size:        size,
	})
	_ = f.Close()
	if err != nil {
		return out, errors.E(errors.CodeInternal, op, err, "upload output to "+oh.sp.Provider())
	}
	_ = os.Remove(path)
	return out, nil
}
