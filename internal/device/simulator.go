package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Имена команд симулятора (используются в Script и Calls).
const (
	CmdSpeak          = "speak"
	CmdMoveToPose     = "move_to_pose"
	CmdMoveToLocation = "move_to_location"
	CmdDockShelf      = "dock_shelf"
	CmdUndockShelf    = "undock_shelf"
	CmdMoveShelf      = "move_shelf"
	CmdReturnShelf    = "return_shelf"
	CmdReturnHome     = "return_home"
	CmdCancelCommand  = "cancel_command"
	CmdGetMovingShelf = "get_moving_shelf"
)

// Outcome — заранее заданный исход одной команды симулятора.
type Outcome struct {
	// Result возвращается, если Err == nil.
	Result CommandResult

	// Err — ошибка транспорта (например, gRPC Unavailable).
	Err error

	// Block — команда висит, пока её не отменят через CancelCommand или ctx.
	Block bool
}

// SimulatorConfig — конфигурация Simulator.
type SimulatorConfig struct {
	// Latency — время выполнения каждой команды (default: 0).
	Latency time.Duration

	// Shelves и Locations — карта робота.
	Shelves   []Shelf
	Locations []Location

	// OnCommand вызывается в начале каждой команды (кроме cancel_command).
	OnCommand func(name string)

	Logger *slog.Logger
}

// Simulator — робот в памяти.
//
// Держит перевозимую полку и позиции полок, считает вызовы и опросы.
// Исходы отдельных команд можно задать через Script.
type Simulator struct {
	latency   time.Duration
	onCommand func(name string)
	logger    *slog.Logger

	mu        sync.Mutex
	carrying  string
	shelves   map[string]*Shelf
	order     []string
	locations map[string]Location
	locOrder  []string
	script    map[string][]Outcome
	calls     []string
	inflight  context.CancelFunc
	metrics   Metrics
}

// NewSimulator создаёт новый Simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Simulator{
		latency:   cfg.Latency,
		onCommand: cfg.OnCommand,
		logger:    logger,
		shelves:   make(map[string]*Shelf),
		locations: make(map[string]Location),
		script:    make(map[string][]Outcome),
	}
	for _, sh := range cfg.Shelves {
		shelf := sh
		s.shelves[sh.ID] = &shelf
		s.order = append(s.order, sh.ID)
	}
	for _, loc := range cfg.Locations {
		s.locations[loc.ID] = loc
		s.locOrder = append(s.locOrder, loc.ID)
	}
	return s
}

// Script ставит в очередь исходы для команды name.
// Когда очередь пуста, команда выполняется штатно.
func (s *Simulator) Script(name string, outcomes ...Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[name] = append(s.script[name], outcomes...)
}

// DropShelf имитирует падение полки: робот больше ничего не везёт.
func (s *Simulator) DropShelf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carrying = ""
}

// Carrying возвращает ID перевозимой полки.
func (s *Simulator) Carrying() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carrying
}

// Calls возвращает журнал вызванных команд.
func (s *Simulator) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount возвращает число вызовов команды name.
func (s *Simulator) CallCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (s *Simulator) nextOutcome(name string) (Outcome, bool) {
	queue := s.script[name]
	if len(queue) == 0 {
		return Outcome{}, false
	}
	s.script[name] = queue[1:]
	return queue[0], true
}

// exec выполняет команду: журнал, скрипт, задержка, отмена, затем apply.
func (s *Simulator) exec(ctx context.Context, name string, apply func() CommandResult) (CommandResult, error) {
	if s.onCommand != nil {
		s.onCommand(name)
	}

	s.mu.Lock()
	s.calls = append(s.calls, name)
	outcome, scripted := s.nextOutcome(name)
	cmdCtx, cancel := context.WithCancel(ctx)
	s.inflight = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight = nil
		s.mu.Unlock()
		cancel()
	}()

	if scripted && outcome.Block {
		<-cmdCtx.Done()
		return s.interrupted(ctx)
	}

	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-cmdCtx.Done():
			return s.interrupted(ctx)
		}
	}

	if scripted {
		if outcome.Err != nil {
			return CommandResult{}, outcome.Err
		}
		return outcome.Result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return apply(), nil
}

func (s *Simulator) interrupted(ctx context.Context) (CommandResult, error) {
	if ctx.Err() != nil {
		return CommandResult{}, status.FromContextError(ctx.Err()).Err()
	}
	return CommandResult{OK: false, ErrorCode: CodeInternal, Error: "command cancelled"}, nil
}

func (s *Simulator) Speak(ctx context.Context, text string) (CommandResult, error) {
	return s.exec(ctx, CmdSpeak, func() CommandResult {
		s.logger.Debug("simulator speak", "text", text)
		return Success()
	})
}

func (s *Simulator) MoveToPose(ctx context.Context, x, y, yaw float64) (CommandResult, error) {
	return s.exec(ctx, CmdMoveToPose, func() CommandResult {
		s.moveCarried(Pose{X: x, Y: y, Theta: yaw})
		return Success()
	})
}

func (s *Simulator) MoveToLocation(ctx context.Context, locationID string) (CommandResult, error) {
	if err := s.checkLocation(locationID); err != nil {
		return CommandResult{}, err
	}
	return s.exec(ctx, CmdMoveToLocation, func() CommandResult {
		s.moveCarried(s.locations[locationID].Pose)
		return Success()
	})
}

func (s *Simulator) DockShelf(ctx context.Context) (CommandResult, error) {
	return s.exec(ctx, CmdDockShelf, func() CommandResult {
		if s.carrying == "" && len(s.order) > 0 {
			s.carrying = s.order[0]
		}
		return Success()
	})
}

func (s *Simulator) UndockShelf(ctx context.Context) (CommandResult, error) {
	return s.exec(ctx, CmdUndockShelf, func() CommandResult {
		if s.carrying == "" {
			return Failure(CodeNotDockedWithShelf)
		}
		s.carrying = ""
		return Success()
	})
}

func (s *Simulator) MoveShelf(ctx context.Context, shelfID, locationID string) (CommandResult, error) {
	if err := s.checkShelf(shelfID); err != nil {
		return CommandResult{}, err
	}
	if err := s.checkLocation(locationID); err != nil {
		return CommandResult{}, err
	}
	return s.exec(ctx, CmdMoveShelf, func() CommandResult {
		s.carrying = shelfID
		s.moveCarried(s.locations[locationID].Pose)
		return Success()
	})
}

func (s *Simulator) ReturnShelf(ctx context.Context, shelfID string) (CommandResult, error) {
	return s.exec(ctx, CmdReturnShelf, func() CommandResult {
		if shelfID != "" && s.carrying != "" && s.carrying != shelfID {
			return Failure(CodeNotDockedWithShelf)
		}
		s.carrying = ""
		return Success()
	})
}

func (s *Simulator) ReturnHome(ctx context.Context) (CommandResult, error) {
	return s.exec(ctx, CmdReturnHome, func() CommandResult {
		if s.carrying != "" {
			return Failure(CodeShelfOnChargeDock)
		}
		return Success()
	})
}

// CancelCommand прерывает текущую команду, если она есть.
func (s *Simulator) CancelCommand(ctx context.Context) (CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, CmdCancelCommand)
	if s.inflight != nil {
		s.inflight()
	}
	return Success(), nil
}

func (s *Simulator) GetMovingShelf(ctx context.Context) (string, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if outcome, ok := s.nextOutcome(CmdGetMovingShelf); ok && outcome.Err != nil {
		s.metrics.PollCount++
		s.metrics.PollFailureCount++
		return "", outcome.Err
	}

	s.metrics.PollCount++
	s.metrics.PollSuccessCount++
	s.metrics.PollRTT = append(s.metrics.PollRTT, time.Since(start))
	return s.carrying, nil
}

func (s *Simulator) GetShelves(ctx context.Context) ([]Shelf, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Shelf, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.shelves[id])
	}
	return out, nil
}

func (s *Simulator) GetLocations(ctx context.Context) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Location, 0, len(s.locOrder))
	for _, id := range s.locOrder {
		out = append(out, s.locations[id])
	}
	return out, nil
}

func (s *Simulator) GetMetrics(ctx context.Context) (Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics
	m.PollRTT = append([]time.Duration(nil), s.metrics.PollRTT...)
	return m, nil
}

func (s *Simulator) ResetMetrics(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = Metrics{}
	return nil
}

// moveCarried переносит перевозимую полку в pose. Вызывается под s.mu.
func (s *Simulator) moveCarried(pose Pose) {
	if s.carrying == "" {
		return
	}
	if shelf, ok := s.shelves[s.carrying]; ok {
		shelf.Pose = pose
	}
}

func (s *Simulator) checkShelf(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.shelves) == 0 {
		return nil
	}
	if _, ok := s.shelves[id]; !ok {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("%v: %s", ErrUnknownShelf, id))
	}
	return nil
}

func (s *Simulator) checkLocation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.locations) == 0 {
		return nil
	}
	if _, ok := s.locations[id]; !ok {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("%v: %s", ErrUnknownLocation, id))
	}
	return nil
}
