package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/agentbridge/agentbridge-go/pkg/message"
	"github.com/agentbridge/agentbridge-go/pkg/router"
)

// replySuffix marks files written by the spoolWatcher itself.
const replySuffix = ".reply"

// spoolWatcher feeds files dropped into a directory through the router. Each
// new file's content becomes one message; the reply lands next to it in a
// .reply file.
type spoolWatcher struct {
	directory string
	localID   message.AgentID
	router    *router.Router
	timeout   time.Duration

	watcher    *fsnotify.Watcher
	knownFiles sync.Map

	stopSyn chan struct{}
	stopAck chan struct{}
}

// newSpoolWatcher creates and starts a spoolWatcher on directory.
func newSpoolWatcher(directory string, localID message.AgentID, r *router.Router, timeout time.Duration) (*spoolWatcher, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(directory); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	spool := &spoolWatcher{
		directory: directory,
		localID:   localID,
		router:    r,
		timeout:   timeout,

		watcher: watcher,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	log.WithField("directory", directory).Info("Watching spool directory")

	go spool.handler()

	return spool, nil
}

func (spool *spoolWatcher) handler() {
	defer func() {
		_ = spool.watcher.Close()
		close(spool.stopAck)
	}()

	for {
		select {
		case <-spool.stopSyn:
			return

		case e, ok := <-spool.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if e.Op&fsnotify.Create == 0 {
				continue
			}
			if strings.HasSuffix(e.Name, replySuffix) {
				continue
			}
			if _, known := spool.knownFiles.LoadOrStore(e.Name, struct{}{}); known {
				continue
			}

			go spool.processFile(e.Name)

		case err, ok := <-spool.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Error("fsnotify errored")
			return
		}
	}
}

// processFile submits one spool file's content and writes the reply. Editors
// may still be writing when the Create event arrives, hence the read retries.
// The knownFiles entry only guards against duplicate events while the file is
// in flight; it is dropped afterwards so the map stays bounded.
func (spool *spoolWatcher) processFile(name string) {
	defer spool.knownFiles.Delete(name)

	logger := log.WithField("file", name)

	var text string
	for i := 0; ; i++ {
		data, err := os.ReadFile(name)
		if err == nil && len(data) > 0 {
			text = strings.TrimRight(string(data), "\n")
			break
		}

		if i >= 4 {
			logger.WithError(err).Error("Failed to read spool file, giving up.")
			return
		}

		time.Sleep(time.Duration(1<<uint(i)) * 100 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), spool.timeout)
	defer cancel()

	reply, err := spool.router.Submit(ctx, router.Inbound{
		Sender: spool.localID,
		Text:   text,
	})

	replyText := reply.Text
	if err != nil {
		replyText = "error: " + err.Error()
	}

	replyPath := filepath.Join(spool.directory, filepath.Base(name)+replySuffix)
	if err := os.WriteFile(replyPath, []byte(replyText+"\n"), 0600); err != nil {
		logger.WithError(err).Error("Writing reply file errored")
		return
	}

	logger.WithField("reply", replyPath).Info("Processed spool file")
}

// Close stops the spoolWatcher.
func (spool *spoolWatcher) Close() {
	close(spool.stopSyn)
	<-spool.stopAck
}
