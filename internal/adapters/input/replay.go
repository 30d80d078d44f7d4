package input

import (
	"context"
	"sync"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/scanradar/internal/domain"
	"github.com/xoelrdgz/scanradar/internal/ports"
)

// ReplaySource feeds a saved firewall log file through the parser, either
// once from the beginning (backfill analysis) or following the file as it
// grows (live tail of a relay's spool). It drives the same detection
// pipeline as the UDP ingress.
type ReplaySource struct {
	filepath   string
	parser     ports.LogParser
	follow     bool
	bufferSize int

	tail     *tail.Tail
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewReplaySource creates a replay source for the given file. With follow
// set, the source keeps tailing after EOF instead of finishing.
func NewReplaySource(filepath string, parser ports.LogParser, follow bool, bufferSize int) *ReplaySource {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ReplaySource{
		filepath:   filepath,
		parser:     parser,
		follow:     follow,
		bufferSize: bufferSize,
		stopChan:   make(chan struct{}),
	}
}

// Start begins reading and returns the event channel. The channel closes
// when the file is exhausted (follow off), the context is cancelled, or
// Stop is called. Lines the parser does not recognize are counted and
// dropped silently, same as on the UDP path.
func (r *ReplaySource) Start(ctx context.Context) <-chan *domain.LogEvent {
	eventChan := make(chan *domain.LogEvent, r.bufferSize)

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		close(eventChan)
		return eventChan
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(eventChan)

		cfg := tail.Config{
			Follow:    r.follow,
			ReOpen:    r.follow,
			MustExist: true,
		}

		t, err := tail.TailFile(r.filepath, cfg)
		if err != nil {
			log.Error().Err(err).Str("file", r.filepath).Msg("Failed to open replay file")
			return
		}
		r.mu.Lock()
		r.tail = t
		r.mu.Unlock()

		log.Info().Str("file", r.filepath).Bool("follow", r.follow).Msg("Replaying log file")

		var total, parsed uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case line, ok := <-t.Lines:
				if !ok {
					log.Info().
						Uint64("lines", total).
						Uint64("events", parsed).
						Msg("Replay finished")
					return
				}
				if line.Err != nil {
					log.Warn().Err(line.Err).Msg("Error reading replay line")
					continue
				}
				if line.Text == "" {
					continue
				}
				total++

				event, ok := r.parser.Parse(line.Text)
				if !ok {
					continue
				}
				parsed++

				select {
				case eventChan <- event:
				case <-ctx.Done():
					return
				case <-r.stopChan:
					return
				}
			}
		}
	}()

	return eventChan
}

// Stop terminates the replay and releases the tail handle.
func (r *ReplaySource) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	close(r.stopChan)

	if r.tail != nil {
		return r.tail.Stop()
	}
	return nil
}
