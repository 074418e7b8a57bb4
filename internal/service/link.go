package service

import (
	"context"
	"errors"

	"github.com/emrgen/docrender/internal/cache"
	"github.com/emrgen/docrender/internal/model"
	"github.com/emrgen/docrender/internal/store"
	"github.com/emrgen/docrender/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxTokenAttempts = 10

// Resolution is the target of a share link at the time it was resolved.
type Resolution struct {
	Token      string
	DocumentID uuid.UUID
	Version    string
	UseLatest  bool
}

// NewLinkService creates a new LinkService.
func NewLinkService(store store.Store, render *RenderService, cache cache.ArtifactCache, tokens TokenGenerator) *LinkService {
	if tokens == nil {
		tokens = RandomTokens(DefaultTokenLength)
	}

	return &LinkService{
		store:  store,
		render: render,
		cache:  cache,
		tokens: tokens,
	}
}

// LinkService creates and resolves share links. A pinned link keeps serving the
// version it was created at, a floating link follows the document.
type LinkService struct {
	store  store.Store
	render *RenderService
	cache  cache.ArtifactCache
	tokens TokenGenerator
	guard  AccessGuard
}

// CreateLink creates a share link for a document. A pinned link forces a render
// first so it can never point at a version that failed to compile.
func (l *LinkService) CreateLink(ctx context.Context, docID uuid.UUID, useLatest bool) (string, error) {
	doc, err := l.store.GetDocument(ctx, docID)
	if err != nil {
		return "", storeError("get document", err)
	}

	return l.createLink(ctx, doc, useLatest, "")
}

// CreateLinkFor creates a share link on behalf of the document owner.
// Anyone else gets ErrNotFound.
func (l *LinkService) CreateLinkFor(ctx context.Context, actor Actor, docID uuid.UUID, useLatest bool) (string, error) {
	doc, err := l.store.GetDocument(ctx, docID)
	if err != nil {
		return "", storeError("get document", err)
	}

	if !l.guard.CanEdit(actor, doc) {
		return "", ErrNotFound
	}

	return l.createLink(ctx, doc, useLatest, actor.ID().String())
}

func (l *LinkService) createLink(ctx context.Context, doc *model.Document, useLatest bool, createdBy string) (string, error) {
	link := &model.ShareLink{
		DocumentID: doc.ID,
		CreatedBy:  createdBy,
		UseLatest:  useLatest,
	}

	if !useLatest {
		if _, err := l.render.GetOrRender(ctx, doc); err != nil {
			return "", err
		}
		link.PinnedVersion = doc.CurrentVersion
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := l.tokens()
		if err != nil {
			return "", err
		}

		exists, err := l.store.LinkExists(ctx, token)
		if err != nil {
			return "", storeError("check token", err)
		}
		if exists {
			logrus.Debugf("share token collision on %s, regenerating", token)
			continue
		}

		link.Token = token
		err = l.store.CreateLink(ctx, link)
		if errors.Is(err, store.ErrDuplicate) {
			// taken between the check and the insert
			continue
		}
		if err != nil {
			return "", storeError("create link", err)
		}

		logrus.WithFields(logrus.Fields{
			"document":  doc.ID,
			"token":     token,
			"useLatest": useLatest,
		}).Infof("created share link")

		return token, nil
	}

	return "", ErrTokenExhausted
}

// Resolve maps a token to its document and effective version. For a floating link
// the version is the document's current one, for a pinned link the stored one.
func (l *LinkService) Resolve(ctx context.Context, token string) (*Resolution, error) {
	res, _, err := l.resolve(ctx, token)
	return res, err
}

// ResolveFor resolves a token on behalf of an actor. A link to a document the actor
// cannot see is reported as not found.
func (l *LinkService) ResolveFor(ctx context.Context, actor Actor, token string) (*Resolution, *model.Document, error) {
	res, doc, err := l.resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	if !l.guard.CanView(actor, doc) {
		return nil, nil, ErrNotFound
	}

	return res, doc, nil
}

// ResolveArtifact returns the compiled bytes a link points at.
// Pinned links only read existing artifacts, floating links may trigger a render.
func (l *LinkService) ResolveArtifact(ctx context.Context, actor Actor, token string) ([]byte, *Resolution, error) {
	res, doc, err := l.ResolveFor(ctx, actor, token)
	if err != nil {
		return nil, nil, err
	}

	if res.UseLatest {
		data, err := l.render.GetOrRender(ctx, doc)
		if err != nil {
			return nil, nil, err
		}
		res.Version = doc.CurrentVersion
		return data, res, nil
	}

	data, _, err := l.render.GetArtifact(ctx, res.DocumentID, res.Version)
	if err != nil {
		return nil, nil, err
	}

	return data, res, nil
}

// ListLinks lists the share links of a document to its owner.
func (l *LinkService) ListLinks(ctx context.Context, actor Actor, docID uuid.UUID) ([]*model.ShareLink, error) {
	doc, err := l.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, storeError("get document", err)
	}

	if !l.guard.CanEdit(actor, doc) {
		return nil, ErrNotFound
	}

	links, err := l.store.ListLinks(ctx, docID)
	if err != nil {
		return nil, storeError("list links", err)
	}

	return links, nil
}

func (l *LinkService) resolve(ctx context.Context, token string) (*Resolution, *model.Document, error) {
	if !ValidToken(token) {
		return nil, nil, ErrNotFound
	}

	link, err := l.getLink(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	docID, err := uuid.Parse(link.DocumentID)
	if err != nil {
		return nil, nil, ErrNotFound
	}

	doc, err := l.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, nil, storeError("get document", err)
	}

	res := &Resolution{
		Token:      link.Token,
		DocumentID: docID,
		UseLatest:  link.UseLatest,
		Version:    link.PinnedVersion,
	}

	if link.UseLatest {
		res.Version = doc.CurrentVersion
		if res.Version == "" {
			res.Version = version.Version(doc.SourceCode, doc.Language)
		}
	}

	return res, doc, nil
}

func (l *LinkService) getLink(ctx context.Context, token string) (*model.ShareLink, error) {
	link, ok, err := l.cache.GetLink(ctx, token)
	if err != nil {
		logrus.Warnf("link cache unavailable: %v", err)
	}
	if ok {
		return link, nil
	}

	link, err = l.store.GetLink(ctx, token)
	if err != nil {
		return nil, storeError("get link", err)
	}

	if err = l.cache.SetLink(ctx, link); err != nil {
		logrus.Warnf("failed to cache link %s: %v", token, err)
	}

	return link, nil
}
