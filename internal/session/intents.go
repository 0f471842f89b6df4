package session

import (
	"errors"
	"fmt"

	"github.com/remote-cue-control/backend/internal/model"
)

// SelectServerRow handles a tap on a workspace row.
func (c *Controller) SelectServerRow(index int) error {
	return c.SelectWorkspace(index)
}

// SelectCueRow marks the cue at index as selected.
func (c *Controller) SelectCueRow(index int) error {
	if c.conn == nil {
		return c.surface(model.ErrNotConnected)
	}

	cues := c.conn.Cues()
	if len(cues) == 0 {
		return c.surface(model.ErrEmptyCueList)
	}
	if index < 0 || index >= len(cues) {
		return fmt.Errorf("%w: cue %d of %d", model.ErrIndexOutOfRange, index, len(cues))
	}

	c.state.SelectedCue = cues[index]
	return nil
}

// PressGo starts the selected cue, or the first cue when nothing listed is selected.
func (c *Controller) PressGo() error {
	if c.conn == nil {
		return c.surface(model.ErrNotConnected)
	}

	cues := c.conn.Cues()
	if len(cues) == 0 {
		return c.surface(model.ErrEmptyCueList)
	}

	cue := cues[0]
	if selected := c.state.SelectedCue; selected != nil {
		for _, candidate := range cues {
			if candidate.Equal(selected) {
				cue = candidate
				break
			}
		}
	}

	return c.surface(c.StartCue(cue))
}

// PressStopAll handles the stop-all button.
func (c *Controller) PressStopAll() error {
	return c.surface(c.StopAll())
}

// PressStopSelected handles the stop-selected button.
func (c *Controller) PressStopSelected() error {
	return c.surface(c.StopSelectedCue())
}

// PressStopCurrent handles the stop-current button.
func (c *Controller) PressStopCurrent() error {
	return c.surface(c.StopCurrentCue())
}

// PressRefresh re-renders the workspace's cue list.
func (c *Controller) PressRefresh() error {
	cues, err := c.RefreshCueList()
	if err != nil {
		return c.surface(err)
	}
	c.presenter.CueListChanged(cues)
	return nil
}

// PressDisconnect asks for confirmation when a workspace is connected, then disconnects.
func (c *Controller) PressDisconnect() {
	if c.state.CurrentWorkspace == nil {
		c.Disconnect()
		return
	}

	c.presenter.ConfirmDisconnect(c.state.CurrentWorkspace.Name, c.answerOnLoop(func(ok bool) {
		if ok {
			c.Disconnect()
		}
	}))
}

// surface raises the presenter alert matching err and returns err unchanged.
func (c *Controller) surface(err error) error {
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotConnected):
		c.presenter.NotConnectedError()
	case errors.Is(err, model.ErrEmptyCueList):
		c.presenter.EmptyCueListError()
	}
	return err
}
