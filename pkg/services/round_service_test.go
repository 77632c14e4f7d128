package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/backsoul/redball/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHitTest(t *testing.T) {
	t.Parallel()
	box := models.BoundingBox{XMin: 0.40, YMin: 0.40, XMax: 0.50, YMax: 0.50}

	tests := []struct {
		name string
		x, y float64
		hit  bool
	}{
		{"centro de la caja", 0.45, 0.45, true},
		{"dentro del margen de tolerancia", 0.36, 0.45, true},
		{"fuera del margen", 0.30, 0.45, false},
		{"borde exacto del margen inferior", 0.35, 0.35, true},
		{"borde exacto del margen superior", 0.55, 0.55, true},
		{"apenas fuera en x", 0.56, 0.45, false},
		{"apenas fuera en y", 0.45, 0.56, false},
		{"esquina opuesta", 0.95, 0.95, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.hit, HitTest(tc.x, tc.y, box, HitTolerance))
		})
	}
}

func TestComputeScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		remaining int
		expected  int
	}{
		{30, 400},
		{12, 220},
		{1, 110},
		{0, 100},
		{-3, 100},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(fmt.Sprintf("restante_%d", tc.remaining), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, ComputeScore(tc.remaining))
		})
	}
}

func TestStartRoundGeneratesAndActivates(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{urls: []string{"https://img.test/r1.png"}}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, view.Phase)

	view, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingDetection, view.Phase)
	assert.Equal(t, "https://img.test/r1.png", view.ImageURL)

	require.Eventually(t, func() bool {
		v, err := rs.GetView(view.SessionID)
		return err == nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, generator.callCount())
	assert.Equal(t, 1, detector.callCount())
}

func TestClickHitScoresWithFrozenTimer(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour // el timer no alcanza a descontar

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	result, err := rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)
	assert.True(t, result.Hit)
	assert.Equal(t, 400, result.Score)
	assert.Equal(t, 30, result.TimeRemaining)

	v, err := rs.GetView(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseHit, v.Phase)
}

func TestClickMissKeepsRoundActive(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	result, err := rs.Click(view.SessionID, 0.10, 0.10)
	require.NoError(t, err)
	assert.False(t, result.Hit)
	assert.False(t, result.Ignored)

	v, err := rs.GetView(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseActive, v.Phase)
}

func TestClickBeforeDetectionWaitsForResult(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox, delay: 50 * time.Millisecond}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	view, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)
	require.Equal(t, models.PhaseAwaitingDetection, view.Phase)

	// El clic llega antes de que la detección termine y espera su resultado
	result, err := rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)
	assert.True(t, result.Hit)
	assert.Equal(t, 1, detector.callCount())
}

func TestLateDetectionDoesNotReopenWonRound(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	kv.setDelay = 50 * time.Millisecond // la persistencia retrasa el final de la detección
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox, delay: 10 * time.Millisecond}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	view, err = rs.StartRound(view.SessionID, false, true)
	require.NoError(t, err)
	require.Equal(t, models.PhaseAwaitingDetection, view.Phase)

	// El clic temprano gana la ronda antes de que la detección termine
	result, err := rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)
	require.True(t, result.Hit)

	// La activación tardía de esa misma detección no reabre la ronda ganada
	require.Never(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v == nil || v.Phase != models.PhaseHit
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestClickAwaitingOldRoundIgnoredAfterRestart(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{urls: []string{"https://img.test/r1.png", "https://img.test/r2.png"}}
	detector := &fakeDetector{bbox: testBox, delay: 100 * time.Millisecond}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	view, err = rs.StartRound(view.SessionID, false, true)
	require.NoError(t, err)
	require.Equal(t, models.PhaseAwaitingDetection, view.Phase)

	type clickOutcome struct {
		result *models.ClickResult
		err    error
	}
	done := make(chan clickOutcome, 1)
	go func() {
		result, err := rs.Click(view.SessionID, 0.45, 0.45)
		done <- clickOutcome{result, err}
	}()

	// Mientras el clic espera la detección, una nueva ronda invalida la anterior
	time.Sleep(30 * time.Millisecond)
	_, err = rs.StartRound(view.SessionID, false, true)
	require.NoError(t, err)

	outcome := <-done
	require.NoError(t, outcome.err)
	assert.True(t, outcome.result.Ignored)
	assert.False(t, outcome.result.Hit)

	// La ronda nueva sigue su curso con su propia imagen
	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive && v.ImageURL == "https://img.test/r2.png"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClickIgnoredWhenNoRound(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	rs, _, _ := newTestRoundService(t, kv, &fakeGenerator{}, &fakeDetector{bbox: testBox})

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)

	result, err := rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.False(t, result.Hit)
}

func TestGenerationFailureThenClickRetries(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{err: fmt.Errorf("boom")}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)

	view, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseError, view.Phase)
	assert.Contains(t, view.StatusText, "retry")

	// Cualquier clic en estado de error relanza la ronda
	generator.mu.Lock()
	generator.err = nil
	generator.mu.Unlock()

	result, err := rs.Click(view.SessionID, 0.9, 0.9)
	require.NoError(t, err)
	assert.True(t, result.Retried)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, generator.callCount())
}

func TestRoundTimesOut(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Millisecond

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseTimedOut
	}, 2*time.Second, 5*time.Millisecond)

	v, err := rs.GetView(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, v.TimeRemaining)

	// Un clic tardío no suma puntos
	result, err := rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestTimerWarningCueFiresOnce(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, rooms, notifier := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Millisecond

	room, err := rooms.CreateRoom("host", 3)
	require.NoError(t, err)

	view, err := rs.CreateSession(room.PinCode, "host", 0)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseTimedOut
	}, 2*time.Second, 5*time.Millisecond)

	// Un único aviso a los 5 segundos restantes y un único fin de tiempo
	warnings, timesUp := 0, 0
	for _, msg := range notifier.byType("cue") {
		data, ok := msg.Data.(map[string]interface{})
		require.True(t, ok)
		switch data["sound"] {
		case "timer-warning":
			warnings++
		case "times-up":
			timesUp++
		}
	}
	assert.Equal(t, 1, warnings)
	assert.Equal(t, 1, timesUp)
}

func TestGameCompletedAfterLastRound(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	view, err := rs.CreateSession("", "solo", 1)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	_, err = rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)

	generated := generator.callCount()

	view, err = rs.NextRound(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseGameCompleted, view.Phase)
	assert.Equal(t, 1, view.CurrentRound)

	// Pasado el total de rondas no se adquiere ninguna imagen más
	assert.Equal(t, generated, generator.callCount())
}

func TestSavedImagesNoRepeatUntilExhausted(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{urls: []string{"https://img.test/fresh.png"}}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	require.NoError(t, rs.images.SaveImage("https://img.test/a.png", testBox))
	require.NoError(t, rs.images.SaveImage("https://img.test/b.png", testBox))

	view, err := rs.CreateSession("", "solo", 5)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for round := 0; round < 2; round++ {
		if round == 0 {
			view, err = rs.StartRound(view.SessionID, false, false)
		} else {
			view, err = rs.NextRound(view.SessionID)
		}
		require.NoError(t, err)
		require.Equal(t, models.PhaseActive, view.Phase)
		assert.False(t, seen[view.ImageURL], "imagen repetida: %s", view.ImageURL)
		seen[view.ImageURL] = true

		_, err = rs.Click(view.SessionID, 0.45, 0.45)
		require.NoError(t, err)
	}

	// Las dos guardadas se usaron sin generar nada
	assert.Equal(t, 0, generator.callCount())

	// Con el pool agotado se fuerza la generación
	_, err = rs.NextRound(view.SessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, generator.callCount())
}

func TestForceNewSkipsSavedImages(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{urls: []string{"https://img.test/forced.png"}}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	require.NoError(t, rs.images.SaveImage("https://img.test/a.png", testBox))

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	v, err := rs.GetView(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "https://img.test/forced.png", v.ImageURL)
	assert.Equal(t, 1, generator.callCount())
}

func TestFollowerAdoptsPublishedImage(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{urls: []string{"https://img.test/shared.png"}}
	detector := &fakeDetector{bbox: testBox}
	rs, rooms, notifier := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	room, err := rooms.CreateRoom("host", 3)
	require.NoError(t, err)
	_, err = rooms.JoinRoom(room.PinCode, "guest")
	require.NoError(t, err)

	hostView, err := rs.CreateSession(room.PinCode, "host", 0)
	require.NoError(t, err)
	guestView, err := rs.CreateSession(room.PinCode, "guest", 0)
	require.NoError(t, err)

	// El invitado arranca primero y queda esperando al anfitrión
	guestView, err = rs.StartRound(guestView.SessionID, false, false)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAcquiring, guestView.Phase)
	assert.Contains(t, guestView.StatusText, "host")

	_, err = rs.StartRound(hostView.SessionID, false, false)
	require.NoError(t, err)

	// Ambos terminan activos con la misma imagen compartida
	require.Eventually(t, func() bool {
		h, _ := rs.GetView(hostView.SessionID)
		g, _ := rs.GetView(guestView.SessionID)
		return h != nil && g != nil &&
			h.Phase == models.PhaseActive && g.Phase == models.PhaseActive &&
			h.ImageURL == g.ImageURL && h.ImageURL == "https://img.test/shared.png"
	}, 2*time.Second, 5*time.Millisecond)

	// El anfitrión generó y detectó una sola vez para toda la sala
	assert.Equal(t, 1, generator.callCount())
	assert.Equal(t, 1, detector.callCount())
	assert.Len(t, notifier.byType("imagePublished"), 1)
}

func TestFollowerPollGivesUpAfterCeiling(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	rs, rooms, _ := newTestRoundService(t, kv, &fakeGenerator{}, &fakeDetector{bbox: testBox})

	room, err := rooms.CreateRoom("host", 3)
	require.NoError(t, err)
	_, err = rooms.JoinRoom(room.PinCode, "guest")
	require.NoError(t, err)

	guestView, err := rs.CreateSession(room.PinCode, "guest", 0)
	require.NoError(t, err)
	_, err = rs.StartRound(guestView.SessionID, false, false)
	require.NoError(t, err)

	// Sin publicación del anfitrión, el sondeo se auto-cancela y la ronda
	// queda sin arrancar
	require.Eventually(t, func() bool {
		v, _ := rs.GetView(guestView.SessionID)
		return v != nil && v.Phase == models.PhaseIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdoptionIsIdempotent(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, rooms, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	room, err := rooms.CreateRoom("host", 3)
	require.NoError(t, err)

	view, err := rs.CreateSession(room.PinCode, "host", 0)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	before, err := rs.GetView(view.SessionID)
	require.NoError(t, err)

	// Una segunda notificación con la misma imagen es un no-op estricto
	rs.OnImagePublished(room.PinCode, before.ImageURL, testBox)

	after, err := rs.GetView(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before.ImageURL, after.ImageURL)
	assert.Equal(t, models.PhaseActive, after.Phase)
}

func TestHitScoreReachesRoomLeaderboard(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, rooms, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	room, err := rooms.CreateRoom("host", 3)
	require.NoError(t, err)

	view, err := rs.CreateSession(room.PinCode, "host", 0)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	result, err := rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)
	require.True(t, result.Hit)

	players, err := rooms.ListPlayers(room.PinCode)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, result.Score, players[0].Score)
}

func TestPinpointClampsBoxToUnitRange(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	view, err := rs.CreateSession("", "solo", 3)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)

	bbox, err := rs.Pinpoint(view.SessionID, 0.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, bbox.XMin)
	assert.InDelta(t, 0.01, bbox.XMax, 1e-9)
	assert.InDelta(t, 0.99, bbox.YMin, 1e-9)
	assert.Equal(t, 1.0, bbox.YMax)
}

func TestResetRestartsFromRoundOne(t *testing.T) {
	t.Parallel()
	kv := newMemoryStore()
	generator := &fakeGenerator{}
	detector := &fakeDetector{bbox: testBox}
	rs, _, _ := newTestRoundService(t, kv, generator, detector)
	rs.tickInterval = time.Hour

	view, err := rs.CreateSession("", "solo", 2)
	require.NoError(t, err)
	_, err = rs.StartRound(view.SessionID, false, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := rs.GetView(view.SessionID)
		return v != nil && v.Phase == models.PhaseActive
	}, time.Second, 5*time.Millisecond)
	_, err = rs.Click(view.SessionID, 0.45, 0.45)
	require.NoError(t, err)

	view, err = rs.NextRound(view.SessionID)
	require.NoError(t, err)
	require.Equal(t, 2, view.CurrentRound)

	view, err = rs.Reset(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CurrentRound)
}
