package ocrservice

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const runnerStopTimeout = 5 * time.Second

// PaddleEngine talks to a long-lived PaddleOCR runner process (see paddle_runner/). The
// model is loaded once when the runner starts; each call then sends one image path and
// reads back one JSON reply:
//
//	-> {"path": "/tmp/2Ef8...png"}
//	<- {"result": [[...]]}  or  {"error": "message"}
//
// The runner handles one image at a time, so calls are serialized.
type PaddleEngine struct {
	command []string
	lang    string

	mu     sync.Mutex
	runner *paddleRunner
}

type paddleRunner struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

type paddleRequest struct {
	Path string `json:"path"`
}

type paddleReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewPaddleEngine(command []string, lang string) *PaddleEngine {
	return &PaddleEngine{command: command, lang: lang}
}

// Start spawns the runner so that model loading happens before the first request.
func (p *PaddleEngine) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runner != nil {
		return nil
	}
	runner, err := p.spawn()
	if err != nil {
		return err
	}
	p.runner = runner
	return nil
}

func (p *PaddleEngine) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runner == nil {
		return nil
	}
	err := p.runner.stop()
	p.runner = nil
	return err
}

// RecognizePath sends path to the runner and returns the raw PaddleOCR result. A runner
// that died or got out of sync is dropped and replaced on the next call.
func (p *PaddleEngine) RecognizePath(ctx context.Context, path string) (RawResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runner == nil {
		runner, err := p.spawn()
		if err != nil {
			return nil, err
		}
		p.runner = runner
	}

	reply, err := p.runner.roundTrip(paddleRequest{Path: path})
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_PADDLE").Msg("paddle runner failed, it will be restarted")
		if stopErr := p.runner.stop(); stopErr != nil {
			log.Warn().Err(stopErr).Str("component", "OCR_PADDLE").Msg("paddle runner did not stop cleanly")
		}
		p.runner = nil
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return RawResult(reply.Result), nil
}

func (p *PaddleEngine) spawn() (*paddleRunner, error) {
	if len(p.command) == 0 {
		return nil, errors.New("no paddle runner command configured")
	}
	args := append(append([]string{}, p.command[1:]...), "--lang", p.lang)
	cmd := exec.Command(p.command[0], args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "paddle runner stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "paddle runner stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "paddle runner stderr")
	}

	log.Info().Str("component", "OCR_PADDLE").Strs("cmdArgs", cmd.Args).Msg("starting paddle runner")
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start paddle runner")
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug().Str("component", "OCR_PADDLE").Int("pid", cmd.Process.Pid).Msg(scanner.Text())
		}
	}()

	return &paddleRunner{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 1<<20),
	}, nil
}

func (r *paddleRunner) roundTrip(req paddleRequest) (paddleReply, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return paddleReply{}, err
	}
	if _, err := r.stdin.Write(append(line, '\n')); err != nil {
		return paddleReply{}, errors.Wrap(err, "write to paddle runner")
	}

	out, err := r.stdout.ReadBytes('\n')
	if err != nil {
		return paddleReply{}, errors.Wrap(err, "paddle runner exited")
	}

	reply := paddleReply{}
	if err := json.Unmarshal(out, &reply); err != nil {
		return paddleReply{}, errors.Wrap(err, "paddle runner sent an unreadable reply")
	}
	return reply, nil
}

// stop closes the runner's stdin, which makes it exit, and kills it if it doesn't.
func (r *paddleRunner) stop() error {
	_ = r.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- r.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(runnerStopTimeout):
		log.Warn().Str("component", "OCR_PADDLE").Int("pid", r.cmd.Process.Pid).
			Msg("paddle runner ignored stdin close, killing it")
		_ = r.cmd.Process.Kill()
		return <-done
	}
}
