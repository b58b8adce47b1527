// Package app wires the document store, embedded entity stores, graph
// builder, verifier, search, history and export behind one service and its
// HTTP surface. Every entity mutation round-trips through the document text:
// load from postgres, rewrite, persist, snapshot, reindex, notify.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"tapestry/api/internal/doctree"
	"tapestry/api/internal/entity"
	"tapestry/api/internal/export"
	"tapestry/api/internal/graph"
	"tapestry/api/internal/history"
	"tapestry/api/internal/notify"
	"tapestry/api/internal/search"
	"tapestry/api/internal/store"
	"tapestry/api/internal/textdoc"
	"tapestry/api/internal/util"
	"tapestry/api/internal/verify"
)

type Service struct {
	store     *store.PostgresStore
	search    *search.Service
	notifier  *notify.RedisNotifier // nil when redis is not configured
	history   *history.Service
	export    *export.Service
	syncToken string
}

func NewService(
	st *store.PostgresStore,
	searchSvc *search.Service,
	notifier *notify.RedisNotifier,
	historySvc *history.Service,
	exportSvc *export.Service,
	syncToken string,
) *Service {
	return &Service{
		store:     st,
		search:    searchSvc,
		notifier:  notifier,
		history:   historySvc,
		export:    exportSvc,
		syncToken: syncToken,
	}
}

// Bootstrap ensures every stored document has a history repo and a search
// index entry. Runs once at startup.
func (s *Service) Bootstrap(ctx context.Context) error {
	summaries, err := s.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap list documents: %w", err)
	}
	for _, summary := range summaries {
		doc, err := s.store.GetDocument(ctx, summary.ID)
		if err != nil {
			return fmt.Errorf("bootstrap load document %s: %w", summary.ID, err)
		}
		if err := s.history.EnsureDocumentRepo(doc.ID, doc.Content, doc.UpdatedBy); err != nil {
			return fmt.Errorf("bootstrap history for %s: %w", doc.ID, err)
		}
		s.search.IndexDocument(doc.ID, doc.Content)
	}
	log.Printf("[app] bootstrap complete, %d documents", len(summaries))
	return nil
}

func (s *Service) SyncToken() string { return s.syncToken }

func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// --- document lifecycle ---

func (s *Service) ListDocuments(ctx context.Context) ([]store.DocumentSummary, error) {
	return s.store.ListDocuments(ctx)
}

func (s *Service) CreateDocument(ctx context.Context, title, author string) (store.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	now := time.Now().UTC()
	doc := store.Document{
		ID:        util.NewID("doc"),
		Title:     title,
		Content:   "# " + title + "\n",
		UpdatedBy: author,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return store.Document{}, fmt.Errorf("insert document: %w", err)
	}
	if err := s.history.EnsureDocumentRepo(doc.ID, doc.Content, author); err != nil {
		return store.Document{}, fmt.Errorf("init history: %w", err)
	}
	s.search.IndexDocument(doc.ID, doc.Content)
	return doc, nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, domainError(http.StatusNotFound, "NOT_FOUND", "document not found", nil)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// SaveDocument replaces the full document text. This is the editor's save
// path; entity mutations go through the per-family operations instead.
func (s *Service) SaveDocument(ctx context.Context, documentID, content, author string) (store.Document, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return store.Document{}, err
	}
	if err := s.persist(ctx, documentID, content, author, "Save document"); err != nil {
		return store.Document{}, err
	}
	return s.GetDocument(ctx, documentID)
}

func (s *Service) RenameDocument(ctx context.Context, documentID, title, author string) (store.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return store.Document{}, err
	}
	if err := s.store.UpdateDocumentTitle(ctx, documentID, title, author); err != nil {
		return store.Document{}, fmt.Errorf("update title: %w", err)
	}
	return s.GetDocument(ctx, documentID)
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := s.history.DeleteDocumentRepo(documentID); err != nil {
		log.Printf("[app] delete history for %s: %v", documentID, err)
	}
	s.search.DeleteDocument(documentID)
	s.publishChange(ctx, documentID, "")
	return nil
}

// --- derived views ---

// TreeNode is the JSON shape of one structural line.
type TreeNode struct {
	ID               string     `json:"id"`
	LineIndex        int        `json:"lineIndex"`
	Level            int        `json:"level"`
	Content          string     `json:"content"`
	IsHub            bool       `json:"isHub,omitempty"`
	IsFlow           bool       `json:"isFlow,omitempty"`
	AttachedEntityID string     `json:"dataObjectId,omitempty"`
	ExpandedID       int        `json:"expandedId,omitempty"`
	RunningNumber    int        `json:"runningNumber,omitempty"`
	TagIDs           []string   `json:"tagIds,omitempty"`
	Children         []TreeNode `json:"children,omitempty"`
}

func (s *Service) Tree(ctx context.Context, documentID string) ([]TreeNode, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tree := doctree.Parse(doc.Content)
	out := make([]TreeNode, 0, len(tree.Roots))
	for _, root := range tree.Roots {
		out = append(out, toTreeNode(root))
	}
	return out, nil
}

func toTreeNode(n *doctree.Node) TreeNode {
	node := TreeNode{
		ID:               n.ID,
		LineIndex:        n.LineIndex,
		Level:            n.Level,
		Content:          n.Content,
		IsHub:            n.IsHub,
		IsFlow:           n.IsFlow,
		AttachedEntityID: n.AttachedEntityID,
		TagIDs:           n.TagIDs,
	}
	if n.ExpandedID >= 0 {
		node.ExpandedID = n.ExpandedID
	}
	if n.RunningNumber >= 0 {
		node.RunningNumber = n.RunningNumber
	}
	for _, c := range n.Children {
		node.Children = append(node.Children, toTreeNode(c))
	}
	return node
}

func (s *Service) Graph(ctx context.Context, documentID string) (*graph.Graph, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tree := doctree.Parse(doc.Content)
	objects := entity.LoadDataObjects(doc.Content)
	configs := entity.LoadExpandedConfigs(doc.Content)
	return graph.Build(tree, objects, configs), nil
}

func (s *Service) Verify(ctx context.Context, documentID string) (verify.Result, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return verify.Result{}, err
	}
	return verify.Check(doc.Content), nil
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, documentID string, req export.Request) (*export.Result, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	req.DocumentID = documentID
	res, err := s.export.Export(ctx, req, doc)
	if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) || errors.Is(err, export.ErrUploaderNotConfigured) {
		return nil, domainError(http.StatusNotImplemented, "EXPORT_UNAVAILABLE", err.Error(), nil)
	}
	return res, err
}

// --- history ---

func (s *Service) History(ctx context.Context, documentID string, limit int) ([]history.CommitInfo, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.history.History(documentID, limit)
}

func (s *Service) Snapshot(ctx context.Context, documentID, hash string) (string, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return "", err
	}
	text, err := s.history.TextByHash(documentID, hash)
	if err != nil {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "snapshot not found", nil)
	}
	return text, nil
}

// Restore rewinds the document to an earlier snapshot. The restore itself is
// committed, so history stays append-only.
func (s *Service) Restore(ctx context.Context, documentID, hash, author string) (store.Document, error) {
	text, err := s.Snapshot(ctx, documentID, hash)
	if err != nil {
		return store.Document{}, err
	}
	if err := s.persist(ctx, documentID, text, author, "Restore snapshot "+hash); err != nil {
		return store.Document{}, err
	}
	return s.GetDocument(ctx, documentID)
}

// --- entity operations ---

// mutate loads the document text, applies fn against an in-memory buffer and
// persists the result when the text changed. fn returning an error aborts
// before anything is written.
func (s *Service) mutate(ctx context.Context, documentID, author, message string, fn func(doc *textdoc.Memory) error) error {
	docRow, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	doc := textdoc.NewMemory(docRow.Content)
	if err := fn(doc); err != nil {
		return err
	}
	if doc.Text() == docRow.Content {
		return nil
	}
	return s.persist(ctx, documentID, doc.Text(), author, message)
}

func (s *Service) persist(ctx context.Context, documentID, content, author, message string) error {
	if err := s.store.UpdateDocumentContent(ctx, documentID, content, author); err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	if _, err := s.history.CommitText(documentID, content, author, message); err != nil {
		log.Printf("[app] history commit for %s: %v", documentID, err)
	}
	s.search.IndexDocument(documentID, content)
	s.publishChange(ctx, documentID, author)
	return nil
}

func (s *Service) publishChange(ctx context.Context, documentID, author string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, notify.Event{DocumentID: documentID, ChangedBy: author}); err != nil {
		log.Printf("[app] publish change for %s: %v", documentID, err)
	}
}

func rejected(what string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", what, nil)
}

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what, nil)
}

// Data objects.

func (s *Service) ListDataObjects(ctx context.Context, documentID string) (entity.DataObjects, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return entity.DataObjects{}, err
	}
	return entity.LoadDataObjects(doc.Content), nil
}

func (s *Service) CreateDataObject(ctx context.Context, documentID, author, name string) (*entity.DataObject, error) {
	var created *entity.DataObject
	err := s.mutate(ctx, documentID, author, "Create data object", func(doc *textdoc.Memory) error {
		created = entity.NewDataObjectStore(doc).Create(name)
		if created == nil {
			return rejected("object name is required")
		}
		return nil
	})
	return created, err
}

func (s *Service) RenameDataObject(ctx context.Context, documentID, author, objectID, name string) error {
	return s.mutate(ctx, documentID, author, "Rename data object", func(doc *textdoc.Memory) error {
		objects := entity.NewDataObjectStore(doc)
		if objects.Load().Find(objectID) == nil {
			return notFound("data object not found")
		}
		if !objects.Rename(objectID, name) && strings.TrimSpace(name) == "" {
			return rejected("object name is required")
		}
		return nil
	})
}

func (s *Service) SetDataObjectAttributes(ctx context.Context, documentID, author, objectID string, attrs []entity.Attribute) error {
	return s.mutate(ctx, documentID, author, "Update data object attributes", func(doc *textdoc.Memory) error {
		objects := entity.NewDataObjectStore(doc)
		if objects.Load().Find(objectID) == nil {
			return notFound("data object not found")
		}
		objects.SetAttributes(objectID, attrs)
		return nil
	})
}

func (s *Service) DeleteDataObject(ctx context.Context, documentID, author, objectID string) error {
	return s.mutate(ctx, documentID, author, "Delete data object", func(doc *textdoc.Memory) error {
		objects := entity.NewDataObjectStore(doc)
		if objects.Load().Find(objectID) == nil {
			return notFound("data object not found")
		}
		objects.Delete(objectID)
		return nil
	})
}

// Tags and tag groups.

func (s *Service) ListTags(ctx context.Context, documentID string) (entity.Tags, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return entity.Tags{}, err
	}
	return entity.LoadTags(doc.Content), nil
}

func (s *Service) CreateTagGroup(ctx context.Context, documentID, author, name string) (*entity.TagGroup, error) {
	var created *entity.TagGroup
	err := s.mutate(ctx, documentID, author, "Create tag group", func(doc *textdoc.Memory) error {
		created = entity.NewTagStore(doc).CreateGroup(name)
		if created == nil {
			return rejected("group name is required")
		}
		return nil
	})
	return created, err
}

func (s *Service) RenameTagGroup(ctx context.Context, documentID, author, groupID, name string) error {
	return s.mutate(ctx, documentID, author, "Rename tag group", func(doc *textdoc.Memory) error {
		if !entity.NewTagStore(doc).RenameGroup(groupID, name) && strings.TrimSpace(name) == "" {
			return rejected("group name is required")
		}
		return nil
	})
}

func (s *Service) DeleteTagGroup(ctx context.Context, documentID, author, groupID string) error {
	return s.mutate(ctx, documentID, author, "Delete tag group", func(doc *textdoc.Memory) error {
		entity.NewTagStore(doc).DeleteGroup(groupID)
		return nil
	})
}

func (s *Service) CreateTag(ctx context.Context, documentID, author, groupID, name string) (*entity.Tag, error) {
	var created *entity.Tag
	err := s.mutate(ctx, documentID, author, "Create tag", func(doc *textdoc.Memory) error {
		created = entity.NewTagStore(doc).CreateTag(groupID, name)
		if created == nil {
			return rejected("tag name is required")
		}
		return nil
	})
	return created, err
}

func (s *Service) RenameTag(ctx context.Context, documentID, author, tagID, name string) error {
	return s.mutate(ctx, documentID, author, "Rename tag", func(doc *textdoc.Memory) error {
		if !entity.NewTagStore(doc).RenameTag(tagID, name) && strings.TrimSpace(name) == "" {
			return rejected("tag name is required")
		}
		return nil
	})
}

func (s *Service) MoveTag(ctx context.Context, documentID, author, tagID, groupID string) error {
	return s.mutate(ctx, documentID, author, "Move tag", func(doc *textdoc.Memory) error {
		entity.NewTagStore(doc).MoveTag(tagID, groupID)
		return nil
	})
}

func (s *Service) DeleteTag(ctx context.Context, documentID, author, tagID string) error {
	return s.mutate(ctx, documentID, author, "Delete tag", func(doc *textdoc.Memory) error {
		entity.NewTagStore(doc).DeleteTag(tagID)
		return nil
	})
}

// System flows.

func (s *Service) ListSystemFlows(ctx context.Context, documentID string) (entity.SystemFlows, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return entity.SystemFlows{}, err
	}
	return entity.LoadSystemFlows(doc.Content), nil
}

func (s *Service) GetSystemFlow(ctx context.Context, documentID, flowID string) (entity.SystemFlow, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return entity.SystemFlow{}, err
	}
	if entity.LoadSystemFlows(doc.Content).Find(flowID) == nil {
		return entity.SystemFlow{}, notFound("system flow not found")
	}
	return entity.LoadSystemFlow(doc.Content, flowID), nil
}

func (s *Service) CreateSystemFlow(ctx context.Context, documentID, author, name string) (*entity.SystemFlow, error) {
	var created *entity.SystemFlow
	err := s.mutate(ctx, documentID, author, "Create system flow", func(doc *textdoc.Memory) error {
		created = entity.NewSystemFlowStore(doc).Create(name)
		if created == nil {
			return rejected("flow name is required")
		}
		return nil
	})
	return created, err
}

func (s *Service) SaveSystemFlow(ctx context.Context, documentID, author string, flow entity.SystemFlow) error {
	return s.mutate(ctx, documentID, author, "Save system flow", func(doc *textdoc.Memory) error {
		if !entity.NewSystemFlowStore(doc).Save(flow) {
			return notFound("system flow not found")
		}
		return nil
	})
}

func (s *Service) RenameSystemFlow(ctx context.Context, documentID, author, flowID, name string) error {
	return s.mutate(ctx, documentID, author, "Rename system flow", func(doc *textdoc.Memory) error {
		if !entity.NewSystemFlowStore(doc).Rename(flowID, name) && strings.TrimSpace(name) == "" {
			return rejected("flow name is required")
		}
		return nil
	})
}

func (s *Service) DeleteSystemFlow(ctx context.Context, documentID, author, flowID string) error {
	return s.mutate(ctx, documentID, author, "Delete system flow", func(doc *textdoc.Memory) error {
		entity.NewSystemFlowStore(doc).Delete(flowID)
		return nil
	})
}

// Test definitions.

func (s *Service) ListTestDefinitions(ctx context.Context, documentID string) (entity.TestDefinitions, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return entity.TestDefinitions{}, err
	}
	return entity.LoadTestDefinitions(doc.Content), nil
}

func (s *Service) CreateTestDefinition(ctx context.Context, documentID, author, name string) (*entity.TestDefinition, error) {
	var created *entity.TestDefinition
	err := s.mutate(ctx, documentID, author, "Create test definition", func(doc *textdoc.Memory) error {
		created = entity.NewTestDefinitionStore(doc).Create(name)
		if created == nil {
			return rejected("test name is required")
		}
		return nil
	})
	return created, err
}

func (s *Service) UpdateTestDefinition(ctx context.Context, documentID, author, testID, name string, steps []string) error {
	return s.mutate(ctx, documentID, author, "Update test definition", func(doc *textdoc.Memory) error {
		tests := entity.NewTestDefinitionStore(doc)
		if tests.Load().Find(testID) == nil {
			return notFound("test definition not found")
		}
		if !tests.Update(testID, name, steps) && strings.TrimSpace(name) == "" {
			return rejected("test name is required")
		}
		return nil
	})
}

func (s *Service) AttachTestDefinition(ctx context.Context, documentID, author, testID string, lineIndex int) error {
	return s.mutate(ctx, documentID, author, "Attach test definition", func(doc *textdoc.Memory) error {
		tests := entity.NewTestDefinitionStore(doc)
		if tests.Load().Find(testID) == nil {
			return notFound("test definition not found")
		}
		if !tests.Attach(testID, lineIndex) {
			return rejected("line is not a structural node")
		}
		return nil
	})
}

func (s *Service) DeleteTestDefinition(ctx context.Context, documentID, author, testID string) error {
	return s.mutate(ctx, documentID, author, "Delete test definition", func(doc *textdoc.Memory) error {
		entity.NewTestDefinitionStore(doc).Delete(testID)
		return nil
	})
}

// Hub notes.

func (s *Service) ListHubNotes(ctx context.Context, documentID string) (entity.HubNotes, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return entity.HubNotes{}, err
	}
	return entity.LoadHubNotes(doc.Content), nil
}

func (s *Service) CreateHubNote(ctx context.Context, documentID, author string, lineIndex int, text string) (*entity.HubNote, error) {
	var created *entity.HubNote
	err := s.mutate(ctx, documentID, author, "Create hub note", func(doc *textdoc.Memory) error {
		created = entity.NewHubNoteStore(doc).Create(lineIndex, text)
		if created == nil {
			return rejected("hub note requires a hub line and non-blank text")
		}
		return nil
	})
	return created, err
}

func (s *Service) UpdateHubNote(ctx context.Context, documentID, author, noteID, text string) error {
	return s.mutate(ctx, documentID, author, "Update hub note", func(doc *textdoc.Memory) error {
		notes := entity.NewHubNoteStore(doc)
		if notes.Load().Find(noteID) == nil {
			return notFound("hub note not found")
		}
		if !notes.Update(noteID, text) && strings.TrimSpace(text) == "" {
			return rejected("hub note text is required")
		}
		return nil
	})
}

func (s *Service) DeleteHubNote(ctx context.Context, documentID, author, noteID string) error {
	return s.mutate(ctx, documentID, author, "Delete hub note", func(doc *textdoc.Memory) error {
		entity.NewHubNoteStore(doc).Delete(noteID)
		return nil
	})
}

// Connector labels.

// ConnectorLabelView is a label with its endpoints resolved against the
// current tree.
type ConnectorLabelView struct {
	entity.ConnectorLabel
	ResolvedFrom string `json:"resolvedFrom,omitempty"`
	ResolvedTo   string `json:"resolvedTo,omitempty"`
}

func (s *Service) ListConnectorLabels(ctx context.Context, documentID string) ([]ConnectorLabelView, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tree := doctree.Parse(doc.Content)
	labels := entity.NewConnectorLabelStore(textdoc.NewMemory(doc.Content))

	out := make([]ConnectorLabelView, 0)
	for _, l := range labels.Load().Labels {
		from, to := labels.ResolveEndpoints(tree, l)
		out = append(out, ConnectorLabelView{ConnectorLabel: l, ResolvedFrom: from, ResolvedTo: to})
	}
	return out, nil
}

func (s *Service) CreateConnectorLabel(ctx context.Context, documentID, author string, fromLine, toLine int, label string) (*entity.ConnectorLabel, error) {
	var created *entity.ConnectorLabel
	err := s.mutate(ctx, documentID, author, "Create connector label", func(doc *textdoc.Memory) error {
		created = entity.NewConnectorLabelStore(doc).Create(fromLine, toLine, label)
		if created == nil {
			return rejected("connector label requires two distinct structural lines and non-blank text")
		}
		return nil
	})
	return created, err
}

func (s *Service) RenameConnectorLabel(ctx context.Context, documentID, author, labelID, label string) error {
	return s.mutate(ctx, documentID, author, "Rename connector label", func(doc *textdoc.Memory) error {
		labels := entity.NewConnectorLabelStore(doc)
		if labels.Load().Find(labelID) == nil {
			return notFound("connector label not found")
		}
		if !labels.Rename(labelID, label) && strings.TrimSpace(label) == "" {
			return rejected("connector label text is required")
		}
		return nil
	})
}

func (s *Service) DeleteConnectorLabel(ctx context.Context, documentID, author, labelID string) error {
	return s.mutate(ctx, documentID, author, "Delete connector label", func(doc *textdoc.Memory) error {
		entity.NewConnectorLabelStore(doc).Delete(labelID)
		return nil
	})
}

// Loop targets.

func (s *Service) ListLoopTargets(ctx context.Context, documentID string) ([]entity.LoopTarget, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return entity.LoadLoopTargets(doc.Content), nil
}

func (s *Service) SetLoopTarget(ctx context.Context, documentID, author string, lineIndex, targetIndex int, label string) (int, error) {
	number := -1
	err := s.mutate(ctx, documentID, author, "Set loop target", func(doc *textdoc.Memory) error {
		number = entity.NewLoopTargetStore(doc).Set(lineIndex, targetIndex, label)
		if number < 0 {
			return rejected("loop source and target must be structural lines")
		}
		return nil
	})
	return number, err
}

func (s *Service) ClearLoopTarget(ctx context.Context, documentID, author string, number int) error {
	return s.mutate(ctx, documentID, author, "Clear loop target", func(doc *textdoc.Memory) error {
		entity.NewLoopTargetStore(doc).Clear(number)
		return nil
	})
}
