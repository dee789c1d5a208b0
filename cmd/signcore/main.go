// Command signcore runs the signing core's wire-protocol loop: a TCP
// listener speaking the fixed-size packet transport (C4), serialized
// through one Dispatcher per connection, backed by a file-persisted
// key-value store and a console-driven PIN/confirmation UI.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/config"
	"github.com/arcsign/signcore/internal/corelog"
	"github.com/arcsign/signcore/internal/handlers"
	"github.com/arcsign/signcore/internal/protocol"
	"github.com/arcsign/signcore/internal/session"
)

func main() {
	addr := flag.String("listen", "127.0.0.1:21324", "address the host-side transport connects to")
	dataPath := flag.String("store", "signcore.kv.json", "path to the device's persisted key-value store")
	flag.Parse()

	log := corelog.Get()

	kv, err := openFileKV(*dataPath)
	if err != nil {
		log.Fatalw("failed to open key-value store", "error", err, "path", *dataPath)
	}

	cfg := config.Default()
	sess := session.New(kv, cfg)
	ui := newConsoleUI(os.Stdin, os.Stderr)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalw("failed to listen", "error", err, "addr", *addr)
	}
	defer ln.Close()
	log.Infow("signcore listening", "addr", *addr)

	// One host connection at a time, matching the single, per-device
	// secure session session.Session models.
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Errorw("accept failed", "error", err)
			return
		}
		log.Infow("host connected", "remote", conn.RemoteAddr())
		serveConn(conn, sess, ui, cfg, log)
		conn.Close()
		log.Infow("host disconnected", "remote", conn.RemoteAddr())
	}
}

// serveConn runs one connection's full request/reply loop until the
// host disconnects or the transport errors out.
func serveConn(conn net.Conn, sess *session.Session, ui collab.UI, cfg *config.Config, log *zap.SugaredLogger) {
	bus := protocol.NewBus(16)
	dispatcher := protocol.NewDispatcher(bus, ui)
	dispatcher.AutoLockCheck = sess.CheckAutoLock

	h := handlers.New(sess, bus, ui)
	h.Register(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go decodeLoop(ctx, conn, bus, cfg, log)

	for {
		env, err := bus.Next(ctx)
		if err != nil {
			return
		}
		replyID, replyPayload := dispatcher.Dispatch(ctx, env, time.Now())
		for _, packet := range protocol.Fragment(replyID, replyPayload, cfg.PacketSize) {
			if _, err := conn.Write(packet); err != nil {
				log.Errorw("failed writing reply packet", "error", err)
				return
			}
		}
	}
}

// decodeLoop reads fixed-size packets off r, reassembles them into
// envelopes, and publishes each completed one onto bus. Runs in its own
// goroutine so Dispatch can block on a button/PIN prompt without
// starving the transport.
func decodeLoop(ctx context.Context, r io.Reader, bus *protocol.Bus, cfg *config.Config, log *zap.SugaredLogger) {
	reassembler := protocol.NewReassembler(cfg.PacketSize, cfg.MsgInEncodedSize)
	packet := make([]byte, cfg.PacketSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := io.ReadFull(r, packet); err != nil {
			return
		}
		env, complete, err := reassembler.Feed(packet)
		if err != nil {
			log.Warnw("malformed packet, resetting reassembler", "error", err)
			reassembler.Reset()
			continue
		}
		if complete {
			bus.Publish(env)
		}
	}
}

// consoleUI renders PIN/confirmation prompts to out and reads the
// operator's answer from in, standing in for the device's physical OLED
// and buttons.
type consoleUI struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsoleUI(in io.Reader, out io.Writer) *consoleUI {
	return &consoleUI{in: bufio.NewReader(in), out: out}
}

func (c *consoleUI) PromptPIN(ctx context.Context) (collab.PinEntry, bool) {
	fmt.Fprint(c.out, "enter PIN: ")
	line, err := c.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil || line == "" {
		return collab.PinEntry{}, false
	}
	return collab.PinEntry{Digits: line}, true
}

func (c *consoleUI) AskConfirm(ctx context.Context, kind collab.ConfirmKind, text string) bool {
	fmt.Fprintf(c.out, "confirm %s: %s [y/N]: ", kind, text)
	line, err := c.in.ReadString('\n')
	if err != nil {
		return false
	}
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

func (c *consoleUI) NotifyProgress(title string, permil int) {
	fmt.Fprintf(c.out, "%s: %d/1000\n", title, permil)
}

func (c *consoleUI) ShowHome() {
	fmt.Fprintln(c.out, "-- home --")
}

// fileKV persists the key-value store as base64-encoded values in a
// single JSON file. The encryption-at-rest this store's doc comment
// describes is a collaborator concern the real device provides below
// this contract; this stand-in keeps the file in its encoded-but-
// unencrypted wire shape, matching the scope of the core being driven
// here rather than the hardware it runs on.
type fileKV struct {
	mu   sync.Mutex
	path string
	data map[string][]byte
}

func openFileKV(path string) (*fileKV, error) {
	kv := &fileKV{path: path, data: make(map[string][]byte)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return kv, nil
		}
		return nil, err
	}
	var encoded map[string]string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	for k, v := range encoded {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, err
		}
		kv.data[k] = b
	}
	return kv, nil
}

func (k *fileKV) Get(key collab.KVKey) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (k *fileKV) Put(key collab.KVKey, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[string(key)] = append([]byte(nil), value...)
	return k.persistLocked()
}

func (k *fileKV) Delete(key collab.KVKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, string(key))
	return k.persistLocked()
}

func (k *fileKV) Wipe() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data = make(map[string][]byte)
	return k.persistLocked()
}

func (k *fileKV) persistLocked() error {
	encoded := make(map[string]string, len(k.data))
	for key, v := range k.data {
		encoded[key] = base64.StdEncoding.EncodeToString(v)
	}
	raw, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, raw, 0o600)
}
