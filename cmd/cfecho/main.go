// Command cfecho is a minimal echo server demonstrating the scheduler,
// notifier and socket packages wired together the way a real protocol
// session would use them: one cftask.Task per connection, driven
// entirely by cfnotify readiness, never blocking a worker goroutine.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaycore/cfcore"
	"github.com/relaycore/cfcore/pkg/cflog"
	"github.com/relaycore/cfcore/pkg/cfnet"
	"github.com/relaycore/cfcore/pkg/cfnotify"
	"github.com/relaycore/cfcore/pkg/cfsession"
	"github.com/relaycore/cfcore/pkg/cftask"
)

func main() {
	var (
		listenAddr = flag.String("addr", "127.0.0.1:7007", "address to listen on")
		workers    = flag.Int("workers", 4, "scheduler worker count")
		idleMillis = flag.Int64("idle-timeout-ms", 30000, "per-connection idle timeout")
	)
	flag.Parse()

	logger := cflog.New(cflog.Info, cflog.TextFormat, os.Stderr)

	cfg := cfcore.Default()
	cfg.Workers = *workers
	engine, err := cfcore.Initialize(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cfecho: %v\n", err)
		os.Exit(1)
	}
	defer cfcore.Uninitialize()

	tcpAddr, err := net.ResolveTCPAddr("tcp4", *listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cfecho: resolving %s: %v\n", *listenAddr, err)
		os.Exit(1)
	}

	listener, err := cfnet.Open(engine.Notifier, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cfecho: opening listener: %v\n", err)
		os.Exit(1)
	}
	if err := listener.Bind(tcpAddr); err != nil {
		fmt.Fprintf(os.Stderr, "cfecho: bind: %v\n", err)
		os.Exit(1)
	}
	if err := listener.Listen(64); err != nil {
		fmt.Fprintf(os.Stderr, "cfecho: listen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("cfecho: listening on %s\n", *listenAddr)

	acceptLoop(engine, listener, *idleMillis, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	fmt.Println("cfecho: shutting down")
	_ = listener.Close()
}

// acceptLoop runs a cftask.Task that drains the listener's accept
// backlog each time it is signalled readable, spawning one
// per-connection echo Task per accepted Socket.
func acceptLoop(engine *cfcore.Engine, listener *cfnet.Socket, idleMillis int64, logger *cflog.Logger) {
	acceptTask := engine.Pool.NewTask("cfecho-accept", cftask.RunnerFunc(func(t *cftask.Task) int64 {
		for {
			conn, _, err := listener.Accept()
			if err != nil {
				if cfnet.KindOf(err) == cfnet.WouldBlock {
					if rerr := listener.RequestEvent(cfnotify.Readable); rerr != nil {
						logger.Errorf("cfecho: re-arming accept: %v", rerr)
						return cftask.Kill
					}
					return cftask.Suspend
				}
				logger.Warnf("cfecho: accept error: %v", err)
				return cftask.Requeue
			}
			startEchoSession(engine, conn, idleMillis, logger)
		}
	}))
	listener.SetTask(acceptTask)
	acceptTask.Signal(cftask.EventUser1)
}

// startEchoSession wires one accepted Socket into a Session and a Task
// that echoes every byte it reads back to the peer, with an idle
// timeout that closes the connection after idleMillis of silence.
func startEchoSession(engine *cfcore.Engine, conn *cfnet.Socket, idleMillis int64, logger *cflog.Logger) {
	task := engine.Pool.NewTask("cfecho-conn", nil)
	conn.SetTask(task)

	sess := cfsession.New(conn, task, nil)
	timeout := cfsession.NewTimeoutTask(engine.Pool, "cfecho-conn-timeout", idleMillis, func() {
		logger.Infof("cfecho: session %s idle timeout", sess.Tag)
		_ = sess.Close()
	})

	buf := make([]byte, 4096)
	task.Runner = cftask.RunnerFunc(func(t *cftask.Task) int64 {
		for {
			n, err := sess.Read(buf)
			if err != nil {
				if cfnet.KindOf(err) == cfnet.WouldBlock {
					if rerr := sess.RequestEvent(cfnotify.Readable); rerr != nil {
						_ = sess.Close()
						return cftask.Kill
					}
					return cftask.Suspend
				}
				_ = sess.Close()
				timeout.Cancel()
				return cftask.Kill
			}
			if n == 0 {
				_ = sess.Close()
				timeout.Cancel()
				return cftask.Kill
			}

			timeout.Touch()
			if _, err := sess.Write(buf[:n]); err != nil {
				_ = sess.Close()
				timeout.Cancel()
				return cftask.Kill
			}
			if err := sess.Flush(); err != nil && cfnet.KindOf(err) != cfnet.WouldBlock {
				_ = sess.Close()
				timeout.Cancel()
				return cftask.Kill
			}
		}
	})

	timeout.Arm()
	task.Signal(cftask.EventUser1)
}
