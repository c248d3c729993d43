package panel

import (
	"context"

	"Bloom/internal/bus"
	"Bloom/internal/store"
)

// Attach subscribes the controller to b and publishes its own events
// there. The returned func detaches it again.
func (c *Controller) Attach(b bus.Bus) func() {
	c.mu.Lock()
	c.bus = b
	c.mu.Unlock()

	unsubs := []func(){
		b.Subscribe(bus.ActionSendMessage, c.onSendMessage),
		b.Subscribe(bus.ActionUploadFile, c.onUploadFile),
		b.Subscribe(bus.ActionSelectModule, c.onSelectModule),
		b.Subscribe(bus.ActionClearChat, c.onClearChat),
		b.Subscribe(bus.ActionBotMessage, c.onBotMessage),
		b.Subscribe(bus.ActionTogglePanel, c.onTogglePanel),
		b.Subscribe(bus.ActionCheckPanel, c.onCheckPanel),
		b.Subscribe(bus.ActionClosePanel, c.onClosePanel),
		b.Subscribe(bus.ActionGetAPIURL, c.onGetAPIURL),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
		c.mu.Lock()
		if c.bus == b {
			c.bus = nil
		}
		c.mu.Unlock()
	}
}

func (c *Controller) onSendMessage(ctx context.Context, msg bus.Message) {
	var data bus.TextData
	if err := msg.Decode(&data); err != nil {
		c.logger.Warn("invalid bus message", "action", msg.Action, "error", err)
		return
	}
	// failures are already shown in the view
	_ = c.SendMessage(ctx, data.Text)
}

func (c *Controller) onUploadFile(ctx context.Context, msg bus.Message) {
	var data bus.FileData
	if err := msg.Decode(&data); err != nil {
		c.logger.Warn("invalid bus message", "action", msg.Action, "error", err)
		return
	}
	_ = c.UploadFile(ctx, data.Path)
}

func (c *Controller) onSelectModule(ctx context.Context, msg bus.Message) {
	var data bus.ModuleData
	if err := msg.Decode(&data); err != nil {
		c.logger.Warn("invalid bus message", "action", msg.Action, "error", err)
		return
	}
	c.SelectModule(ctx, data.ModuleCode)
}

func (c *Controller) onClearChat(ctx context.Context, _ bus.Message) {
	_ = c.ClearChat(ctx)
}

func (c *Controller) onBotMessage(_ context.Context, msg bus.Message) {
	var data bus.TextData
	if err := msg.Decode(&data); err != nil {
		c.logger.Warn("invalid bus message", "action", msg.Action, "error", err)
		return
	}
	c.AddBotMessage(data.Text)
}

func (c *Controller) onTogglePanel(ctx context.Context, _ bus.Message) {
	c.mu.Lock()
	c.panelOpen = !c.panelOpen
	open := c.panelOpen
	c.mu.Unlock()
	c.savePanelState(ctx, open)
}

func (c *Controller) onCheckPanel(ctx context.Context, _ bus.Message) {
	c.publish(ctx, bus.ActionPanelState, bus.PanelState{Open: c.PanelOpen()})
}

func (c *Controller) onClosePanel(ctx context.Context, _ bus.Message) {
	c.mu.Lock()
	c.panelOpen = false
	c.mu.Unlock()
	c.savePanelState(ctx, false)
}

func (c *Controller) onGetAPIURL(ctx context.Context, _ bus.Message) {
	c.publish(ctx, bus.ActionAPIURL, bus.APIURLData{APIURL: c.client.BaseURL()})
}

// PanelOpen reports whether the panel is shown.
func (c *Controller) PanelOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panelOpen
}

func (c *Controller) savePanelState(ctx context.Context, open bool) {
	if err := c.store.Set(ctx, store.KeyIsPanelOpen, open); err != nil {
		c.logger.Error("failed to save panel state", "error", err)
	}
	c.publish(ctx, bus.ActionPanelState, bus.PanelState{Open: open})
}
