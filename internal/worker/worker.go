// Package worker runs the external face detector (a Python process using dlib /
// face_recognition) and speaks its binary frame protocol.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/sentinel-home/internal/types"
	"github.com/andresmejia3/sentinel-home/internal/utils"
)

// ErrDetector wraps an error reported by the detector itself (as opposed to a broken pipe).
var ErrDetector = errors.New("detector error")

const (
	statusOK    = 0
	statusError = 1

	// maxResponse bounds a single response frame.
	maxResponse = 16 * 1024 * 1024
)

// PythonWorker owns one detector process. Requests go to its stdin; responses come
// back on a side-channel pipe (FD 3) so library chatter on stdout cannot corrupt them.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration

	mu sync.Mutex
}

// NewPythonWorker starts the detector command line (e.g. "python3 -u python/detector.py").
func NewPythonWorker(ctx context.Context, id int, command string, timeout time.Duration) (*PythonWorker, error) {
	name, args, err := utils.SplitCommand(command)
	if err != nil {
		return nil, fmt.Errorf("detector command: %w", err)
	}
	py := utils.NewSafeCommand(ctx, name, args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// The write-end appears as FD 3 in the child.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Only the child holds the write-end now.
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  timeout,
	}, nil
}

// Communicate sends one [Length][Data] request and returns the raw response body.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.Timeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.Timeout))
		defer d.SetReadDeadline(time.Time{})
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // a crashed child (e.g. ModuleNotFoundError) surfaces here
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect runs the detector on one JPEG frame.
// Response: [Status:0][NumFaces u32] then per face [Box 4xint32 top,right,bottom,left][Vec 128xfloat32],
// or [Status:1][MsgLen u32][Msg].
func (w *PythonWorker) Detect(frame []byte) ([]types.DetectedFace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.Communicate(frame)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func decodeResponse(resp []byte) ([]types.DetectedFace, error) {
	if len(resp) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	r := bytes.NewReader(resp[1:])

	switch resp[0] {
	case statusOK:
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("truncated error response: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("truncated error response: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrDetector, msg)
	default:
		return nil, fmt.Errorf("unknown response status %d", resp[0])
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("reading face count: %w", err)
	}
	const faceSize = 4*4 + types.EmbeddingDim*4
	if int64(count)*faceSize > int64(r.Len()) {
		return nil, fmt.Errorf("response claims %d faces but has %d bytes", count, r.Len())
	}

	faces := make([]types.DetectedFace, 0, count)
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		var vec [types.EmbeddingDim]float32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("reading box %d: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &vec); err != nil {
			return nil, fmt.Errorf("reading embedding %d: %w", i, err)
		}
		emb := make(types.Embedding, types.EmbeddingDim)
		for j, v := range vec {
			emb[j] = float64(v)
		}
		faces = append(faces, types.DetectedFace{
			Embedding: emb,
			Box:       types.Box{Top: int(box[0]), Right: int(box[1]), Bottom: int(box[2]), Left: int(box[3])},
		})
	}
	return faces, nil
}

// Close stops the detector and waits for it to exit.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
