package relayq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/child"
	"github.com/relayq/relayq/internal/ipc"
	"github.com/relayq/relayq/internal/log"
)

// forkExecutor implements executor by spawning a brand new child process
// per task (ModeForkPerTask). It trades reuse for isolation: a
// child that corrupts its own heap or leaks file descriptors cannot affect
// the next task.
type forkExecutor struct {
	executable string
	childEnv   []string
	logger     *log.Logger
}

func newForkExecutor(executable string, redisEnv []string, logger *log.Logger) *forkExecutor {
	env := append([]string{envChildMode + "=fork"}, redisEnv...)
	return &forkExecutor{executable: executable, childEnv: env, logger: logger}
}

func (e *forkExecutor) close() {}

func (e *forkExecutor) execute(msg *base.TaskMessage, deadline time.Time, killGrace time.Duration) outcome {
	data, err := base.EncodeMessage(msg)
	if err != nil {
		return outcome{kind: outcomeTaskError, err: err}
	}

	taskR, taskW, err := os.Pipe()
	if err != nil {
		return outcome{kind: outcomeChildDied, err: fmt.Errorf("open task pipe: %w", err)}
	}
	replyR, replyW, err := os.Pipe()
	if err != nil {
		taskR.Close()
		taskW.Close()
		return outcome{kind: outcomeChildDied, err: fmt.Errorf("open reply pipe: %w", err)}
	}

	cmd := exec.Command(e.executable)
	cmd.Env = append(os.Environ(), e.childEnv...)
	// The child's own stdin/stdout are left free for its handler code (a
	// handler that prints, or reads stdin, cannot see or disturb the
	// framing protocol); only the dedicated fds below carry frames.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{taskR, replyW} // fd 3: task frame in, fd 4: reply frame out

	if err := cmd.Start(); err != nil {
		taskR.Close()
		taskW.Close()
		replyR.Close()
		replyW.Close()
		return outcome{kind: outcomeChildDied, err: fmt.Errorf("start child: %w", err)}
	}
	// The child inherited its own dup of these ends; close the parent's
	// copies so EOF/broken-pipe semantics work once the child exits.
	taskR.Close()
	replyW.Close()

	replyCh := make(chan child.Reply, 1)
	replyErrCh := make(chan error, 1)
	exitCh := make(chan error, 1)

	var g errgroup.Group
	g.Go(func() error {
		defer taskW.Close()
		return ipc.WriteFrame(taskW, data)
	})
	g.Go(func() error {
		defer replyR.Close()
		r := bufio.NewReader(replyR)
		frame, err := ipc.ReadFrame(r)
		if err != nil {
			if err == io.EOF {
				return nil // child exited without replying; exitCh carries the reason
			}
			replyErrCh <- err
			return nil
		}
		var reply child.Reply
		if err := DefaultSerializer.Unmarshal(frame, &reply); err != nil {
			replyErrCh <- err
			return nil
		}
		replyCh <- reply
		return nil
	})
	g.Go(func() error {
		exitCh <- cmd.Wait()
		return nil
	})

	out := raceForOutcome(cmd, replyCh, replyErrCh, exitCh, deadline, killGrace)
	g.Wait() // join every goroutine before returning; the reply pipe closes once the child exits
	return out
}

// raceForOutcome multiplexes the three suspension points a supervised
// child creates: a reply on its pipe, the process exiting, or the task's
// deadline elapsing. It is used by the fork executor; preforkExecutor.execute
// runs its own equivalent loop against its long-lived child.
func raceForOutcome(cmd *exec.Cmd, replyCh <-chan child.Reply, replyErrCh <-chan error, exitCh <-chan error, deadline time.Time, killGrace time.Duration) outcome {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	killedBy := ""

	for {
		select {
		case reply := <-replyCh:
			<-exitCh
			if killedBy != "" {
				return outcome{kind: outcomeTimeout, killedBy: killedBy}
			}
			if reply.OK {
				return outcome{kind: outcomeSuccess}
			}
			return outcome{kind: outcomeTaskError, err: errors.New(reply.Err)}

		case err := <-replyErrCh:
			exitErr := <-exitCh
			if killedBy != "" {
				return outcome{kind: outcomeTimeout, killedBy: killedBy}
			}
			return outcome{kind: outcomeChildDied, err: fmt.Errorf("child pipe: %w (exit: %v)", err, exitErr)}

		case exitErr := <-exitCh:
			if killedBy != "" {
				return outcome{kind: outcomeTimeout, killedBy: killedBy}
			}
			return outcome{kind: outcomeChildDied, err: exitErr}

		case <-timer.C:
			if killedBy == "" {
				killedBy = "SIGTERM"
				_ = softKill(cmd)
				timer.Reset(killGrace)
				continue
			}
			killedBy = "SIGKILL"
			_ = hardKill(cmd)
			select {
			case <-exitCh:
			case <-replyCh:
				<-exitCh
			}
			return outcome{kind: outcomeTimeout, killedBy: killedBy}
		}
	}
}
