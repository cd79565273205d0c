package relayq

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/child"
	"github.com/relayq/relayq/internal/ipc"
	"github.com/relayq/relayq/internal/log"
)

// preforkExecutor implements executor by keeping one child process alive
// across many tasks (ModePrefork), amortizing process-start cost for
// handlers with heavy per-process setup (loaded models, warm caches).
// A task that times out or a pipe that breaks costs the whole child; the
// next call to execute respawns one.
type preforkExecutor struct {
	executable string
	childEnv   []string
	logger     *log.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	taskW  *os.File // parent's write end of the child's fd 3 (task frames in)
	replyR *os.File // parent's read end of the child's fd 4 (reply frames out)
	reader *bufio.Reader
	diedCh chan error
}

func newPreforkExecutor(executable string, redisEnv []string, logger *log.Logger) *preforkExecutor {
	env := append([]string{envChildMode + "=prefork"}, redisEnv...)
	return &preforkExecutor{executable: executable, childEnv: env, logger: logger}
}

func (e *preforkExecutor) spawnLocked() error {
	taskR, taskW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("open task pipe: %w", err)
	}
	replyR, replyW, err := os.Pipe()
	if err != nil {
		taskR.Close()
		taskW.Close()
		return fmt.Errorf("open reply pipe: %w", err)
	}

	cmd := exec.Command(e.executable)
	cmd.Env = append(os.Environ(), e.childEnv...)
	// Left free for the reused child's handler code across every task it
	// runs; only fd 3/4 below ever carry a frame.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{taskR, replyW} // fd 3: task frame in, fd 4: reply frame out

	if err := cmd.Start(); err != nil {
		taskR.Close()
		taskW.Close()
		replyR.Close()
		replyW.Close()
		return fmt.Errorf("start child: %w", err)
	}
	taskR.Close() // the child now owns its dup of these ends
	replyW.Close()

	e.cmd = cmd
	e.taskW = taskW
	e.replyR = replyR
	e.reader = bufio.NewReader(replyR)
	e.diedCh = make(chan error, 1)
	go func() { e.diedCh <- cmd.Wait() }()
	return nil
}

// resetLocked drops the executor's reference to the current child so the
// next execute call spawns a fresh one. It does not itself try to kill
// anything.
func (e *preforkExecutor) resetLocked() {
	if e.taskW != nil {
		e.taskW.Close()
	}
	if e.replyR != nil {
		e.replyR.Close()
	}
	e.cmd = nil
	e.taskW = nil
	e.replyR = nil
	e.reader = nil
}

func (e *preforkExecutor) killAndResetLocked(killedBy string) {
	if e.cmd != nil {
		if killedBy == "SIGKILL" {
			_ = hardKill(e.cmd)
		} else {
			_ = softKill(e.cmd)
		}
		<-e.diedCh
	}
	e.resetLocked()
}

func (e *preforkExecutor) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil {
		return
	}
	_ = softKill(e.cmd)
	select {
	case <-e.diedCh:
	case <-time.After(2 * time.Second):
		_ = hardKill(e.cmd)
		<-e.diedCh
	}
	e.resetLocked()
}

func (e *preforkExecutor) execute(msg *base.TaskMessage, deadline time.Time, killGrace time.Duration) outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		if err := e.spawnLocked(); err != nil {
			return outcome{kind: outcomeChildDied, err: err}
		}
	}

	data, err := base.EncodeMessage(msg)
	if err != nil {
		return outcome{kind: outcomeTaskError, err: err}
	}
	if err := ipc.WriteFrame(e.taskW, data); err != nil {
		e.resetLocked()
		return outcome{kind: outcomeChildDied, err: fmt.Errorf("write task frame: %w", err)}
	}

	replyCh := make(chan child.Reply, 1)
	replyErrCh := make(chan error, 1)
	go func() {
		frame, err := ipc.ReadFrame(e.reader)
		if err != nil {
			replyErrCh <- err
			return
		}
		var reply child.Reply
		if err := DefaultSerializer.Unmarshal(frame, &reply); err != nil {
			replyErrCh <- err
			return
		}
		replyCh <- reply
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	killedBy := ""

	for {
		select {
		case reply := <-replyCh:
			if killedBy != "" {
				e.killAndResetLocked(killedBy)
				return outcome{kind: outcomeTimeout, killedBy: killedBy}
			}
			if reply.OK {
				return outcome{kind: outcomeSuccess}
			}
			return outcome{kind: outcomeTaskError, err: errors.New(reply.Err)}

		case err := <-replyErrCh:
			if killedBy != "" {
				e.killAndResetLocked(killedBy)
				return outcome{kind: outcomeTimeout, killedBy: killedBy}
			}
			e.resetLocked()
			return outcome{kind: outcomeChildDied, err: err}

		case err := <-e.diedCh:
			e.resetLocked()
			if killedBy != "" {
				return outcome{kind: outcomeTimeout, killedBy: killedBy}
			}
			return outcome{kind: outcomeChildDied, err: err}

		case <-timer.C:
			if killedBy == "" {
				killedBy = "SIGTERM"
				_ = softKill(e.cmd)
				timer.Reset(killGrace)
				continue
			}
			killedBy = "SIGKILL"
			e.killAndResetLocked(killedBy)
			return outcome{kind: outcomeTimeout, killedBy: killedBy}
		}
	}
}
