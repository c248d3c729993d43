package panel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"Bloom/internal/backend"
	"Bloom/internal/bus"
	"Bloom/internal/session"
	"Bloom/internal/store"
)

// ErrUnsupportedFile is returned for uploads that are not PDF or DOCX.
var ErrUnsupportedFile = errors.New("only PDF and DOCX files are supported")

// Supported reports whether name has an extension the backend accepts.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".pdf" || ext == ".docx"
}

// UploadFile sends the file at path to the backend under the selected
// module, reporting progress as bot messages.
func (c *Controller) UploadFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if !Supported(name) {
		c.AddBotMessage(fmt.Sprintf("Sorry, I can't process %s. Only PDF and DOCX files are supported.", name))
		return fmt.Errorf("%s: %w", name, ErrUnsupportedFile)
	}

	f, err := os.Open(path)
	if err != nil {
		c.AddBotMessage(fmt.Sprintf("Sorry, I couldn't open %s.", name))
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	module := c.Module()
	c.AddBotMessage(fmt.Sprintf("Uploading %s...", name))

	resp, err := c.client.UploadDocument(ctx, name, f, module)
	if err != nil {
		c.logger.Error("upload failed", "file", name, "module", module, "error", err)
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			detail := apiErr.Detail
			if detail == "" {
				detail = "Unknown error"
			}
			c.AddBotMessage(fmt.Sprintf("Sorry, I couldn't process %s. Error: %s", name, detail))
		} else {
			c.AddBotMessage(fmt.Sprintf("Sorry, I couldn't process %s due to a connection error.", name))
		}
		return fmt.Errorf("upload %s: %w", name, err)
	}

	moduleInfo := ""
	if resp.ModuleCode != "" {
		moduleInfo = " to module " + resp.ModuleCode
	}
	c.AddBotMessage(fmt.Sprintf("Successfully processed %s%s. What would you like to know about it?", name, moduleInfo))

	doc := session.Document{
		ID:         resp.DocumentID,
		Name:       name,
		Timestamp:  c.now(),
		ModuleCode: resp.ModuleCode,
	}
	c.mu.Lock()
	c.documents = append(c.documents, doc)
	docs := append([]session.Document(nil), c.documents...)
	c.mu.Unlock()

	c.saveDocuments(ctx, docs)
	c.logger.Info("document uploaded", "document_id", doc.ID, "file", name, "module", doc.ModuleCode)

	// a new module may have been created
	c.modules.Invalidate()
	if _, err := c.LoadModules(ctx); err != nil {
		c.logger.Warn("failed to refresh modules", "error", err)
	}
	return nil
}

// DeleteDocument removes a document from the backend and the local list.
func (c *Controller) DeleteDocument(ctx context.Context, id string) error {
	if err := c.client.DeleteDocument(ctx, id); err != nil {
		c.logger.Error("failed to delete document", "document_id", id, "error", err)
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	c.mu.Lock()
	kept := c.documents[:0:0]
	for _, doc := range c.documents {
		if doc.ID != id {
			kept = append(kept, doc)
		}
	}
	c.documents = kept
	docs := append([]session.Document(nil), kept...)
	c.mu.Unlock()

	c.saveDocuments(ctx, docs)
	return nil
}

// Documents lists known documents, only those of module when it is set.
func (c *Controller) Documents(module string) []session.Document {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs := make([]session.Document, 0, len(c.documents))
	for _, doc := range c.documents {
		if module == "" || doc.ModuleCode == module {
			docs = append(docs, doc)
		}
	}
	return docs
}

// LoadModules returns the backend's modules, from cache while fresh.
func (c *Controller) LoadModules(ctx context.Context) ([]backend.Module, error) {
	if modules, ok := c.modules.Get(); ok {
		return modules, nil
	}

	modules, err := c.client.Modules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}
	c.modules.Set(modules)
	c.logger.Debug("loaded modules", "count", len(modules))
	return modules, nil
}

// SelectModule scopes questions and uploads to code; empty selects all
// documents.
func (c *Controller) SelectModule(ctx context.Context, code string) {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	c.module = code
	c.mu.Unlock()

	if err := c.store.Set(ctx, store.KeyModule, code); err != nil {
		c.logger.Error("failed to save module", "module", code, "error", err)
	}

	if code != "" {
		c.AddBotMessage(fmt.Sprintf("Switched to module %s. You can now ask questions about this module's content.", code))
	} else {
		c.AddBotMessage("Switched to all documents mode. You can ask about any document in the system.")
	}
}

func (c *Controller) saveDocuments(ctx context.Context, docs []session.Document) {
	if err := c.store.SetDocuments(ctx, docs); err != nil {
		c.logger.Error("failed to save documents", "error", err)
	}
	c.publish(ctx, bus.ActionDocumentsUpdated, docs)
}
