package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/events"
	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// In-memory stand-ins for the Mongo repositories and Redis caches. Every
// service constructor takes interfaces, so the tests run the real service
// logic over these.

type memParticipantRepo struct {
	mu   sync.Mutex
	byID map[string]*model.ParticipantProfile
}

func newMemParticipantRepo() *memParticipantRepo {
	return &memParticipantRepo{byID: make(map[string]*model.ParticipantProfile)}
}

func (r *memParticipantRepo) Create(ctx context.Context, p *model.ParticipantProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.PrivateID] = p
	return nil
}

func (r *memParticipantRepo) GetByPrivateID(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[privateID], nil
}

func (r *memParticipantRepo) GetByCohortID(ctx context.Context, cohortID string) ([]*model.ParticipantProfile, error) {
	return r.filter(func(p *model.ParticipantProfile) bool {
		return p.CurrentCohortID == cohortID
	}), nil
}

func (r *memParticipantRepo) GetPendingTransfersTo(ctx context.Context, cohortID string) ([]*model.ParticipantProfile, error) {
	return r.filter(func(p *model.ParticipantProfile) bool {
		return p.TransferCohortID == cohortID && p.CurrentStatus == model.StatusTransferPending
	}), nil
}

func (r *memParticipantRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.ParticipantProfile, error) {
	return r.filter(func(p *model.ParticipantProfile) bool {
		return p.ExperimentID == experimentID
	}), nil
}

func (r *memParticipantRepo) GetByStatus(ctx context.Context, status model.ParticipantStatus) ([]*model.ParticipantProfile, error) {
	return r.filter(func(p *model.ParticipantProfile) bool {
		return p.CurrentStatus == status
	}), nil
}

func (r *memParticipantRepo) CountByCohortID(ctx context.Context, cohortID string) (int64, error) {
	members, _ := r.GetByCohortID(ctx, cohortID)
	return int64(len(members)), nil
}

func (r *memParticipantRepo) CountByVariableValue(ctx context.Context, experimentID, name, value string) (int64, error) {
	matches := r.filter(func(p *model.ParticipantProfile) bool {
		return p.ExperimentID == experimentID && p.VariableMap[name] == value
	})
	return int64(len(matches)), nil
}

func (r *memParticipantRepo) Update(ctx context.Context, p *model.ParticipantProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.PrivateID] = p
	return nil
}

func (r *memParticipantRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.byID {
		if p.ExperimentID == experimentID {
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *memParticipantRepo) filter(keep func(*model.ParticipantProfile) bool) []*model.ParticipantProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ParticipantProfile
	for _, p := range r.byID {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrivateID < out[j].PrivateID })
	return out
}

type memExperimentRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Experiment
}

func newMemExperimentRepo() *memExperimentRepo {
	return &memExperimentRepo{byID: make(map[string]*model.Experiment)}
}

func (r *memExperimentRepo) Create(ctx context.Context, e *model.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[e.ID] = e
	return nil
}

func (r *memExperimentRepo) GetByID(ctx context.Context, id string) (*model.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memExperimentRepo) GetByExperimenterID(ctx context.Context, experimenterID string) ([]*model.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Experiment
	for _, e := range r.byID {
		if e.ExperimenterID == experimenterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memExperimentRepo) Update(ctx context.Context, e *model.Experiment) error {
	return r.Create(ctx, e)
}

func (r *memExperimentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

type memStageRepo struct {
	mu   sync.Mutex
	byID map[string]*model.StageConfig
}

func newMemStageRepo() *memStageRepo {
	return &memStageRepo{byID: make(map[string]*model.StageConfig)}
}

func (r *memStageRepo) Create(ctx context.Context, s *model.StageConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	return nil
}

func (r *memStageRepo) CreateMany(ctx context.Context, stages []*model.StageConfig) error {
	for _, s := range stages {
		if err := r.Create(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *memStageRepo) GetByID(ctx context.Context, experimentID, stageID string) (*model.StageConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[stageID]
	if !ok || s.ExperimentID != experimentID {
		return nil, nil
	}
	return s, nil
}

func (r *memStageRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StageConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StageConfig
	for _, s := range r.byID {
		if s.ExperimentID == experimentID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStageRepo) Update(ctx context.Context, s *model.StageConfig) error {
	return r.Create(ctx, s)
}

func (r *memStageRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.byID {
		if s.ExperimentID == experimentID {
			delete(r.byID, id)
		}
	}
	return nil
}

type memCohortRepo struct {
	mu   sync.Mutex
	byID map[string]*model.CohortConfig
}

func newMemCohortRepo() *memCohortRepo {
	return &memCohortRepo{byID: make(map[string]*model.CohortConfig)}
}

func (r *memCohortRepo) Create(ctx context.Context, c *model.CohortConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	return nil
}

func (r *memCohortRepo) GetByID(ctx context.Context, id string) (*model.CohortConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memCohortRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.CohortConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CohortConfig
	for _, c := range r.byID {
		if c.ExperimentID == experimentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCohortRepo) Update(ctx context.Context, c *model.CohortConfig) error {
	return r.Create(ctx, c)
}

func (r *memCohortRepo) SetStageUnlocked(ctx context.Context, cohortID, stageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[cohortID]
	if !ok {
		return nil
	}
	if c.StageUnlockMap == nil {
		c.StageUnlockMap = make(map[string]bool)
	}
	c.StageUnlockMap[stageID] = true
	return nil
}

func (r *memCohortRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *memCohortRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.byID {
		if c.ExperimentID == experimentID {
			delete(r.byID, id)
		}
	}
	return nil
}

type memAnswerRepo struct {
	mu   sync.Mutex
	byID map[string]*model.StageParticipantAnswer
}

func newMemAnswerRepo() *memAnswerRepo {
	return &memAnswerRepo{byID: make(map[string]*model.StageParticipantAnswer)}
}

func answerKey(privateID, stageID string) string {
	return privateID + "|" + stageID
}

func (r *memAnswerRepo) Upsert(ctx context.Context, a *model.StageParticipantAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.UpdatedAt = time.Now()
	r.byID[answerKey(a.ParticipantPrivateID, a.StageID)] = a
	return nil
}

func (r *memAnswerRepo) GetByParticipantAndStage(ctx context.Context, privateID, stageID string) (*model.StageParticipantAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[answerKey(privateID, stageID)], nil
}

func (r *memAnswerRepo) GetByParticipantID(ctx context.Context, privateID string) ([]*model.StageParticipantAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StageParticipantAnswer
	for _, a := range r.byID {
		if a.ParticipantPrivateID == privateID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAnswerRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StageParticipantAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StageParticipantAnswer
	for _, a := range r.byID {
		if a.ExperimentID == experimentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAnswerRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.byID {
		if a.ExperimentID == experimentID {
			delete(r.byID, id)
		}
	}
	return nil
}

type memPublicDataRepo struct {
	mu   sync.Mutex
	byID map[string]*model.StagePublicData
}

func newMemPublicDataRepo() *memPublicDataRepo {
	return &memPublicDataRepo{byID: make(map[string]*model.StagePublicData)}
}

func publicKey(cohortID, stageID string) string {
	return cohortID + "|" + stageID
}

func (r *memPublicDataRepo) Upsert(ctx context.Context, d *model.StagePublicData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.UpdatedAt = time.Now()
	r.byID[publicKey(d.CohortID, d.StageID)] = d
	return nil
}

func (r *memPublicDataRepo) GetByCohortAndStage(ctx context.Context, cohortID, stageID string) (*model.StagePublicData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[publicKey(cohortID, stageID)], nil
}

func (r *memPublicDataRepo) GetByCohortID(ctx context.Context, cohortID string) ([]*model.StagePublicData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StagePublicData
	for _, d := range r.byID {
		if d.CohortID == cohortID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memPublicDataRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StagePublicData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StagePublicData
	for _, d := range r.byID {
		if d.ExperimentID == experimentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memPublicDataRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.byID {
		if d.ExperimentID == experimentID {
			delete(r.byID, id)
		}
	}
	return nil
}

type memChatRepo struct {
	mu       sync.Mutex
	messages []*model.ChatMessage
}

func newMemChatRepo() *memChatRepo {
	return &memChatRepo{}
}

func (r *memChatRepo) Create(ctx context.Context, m *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *memChatRepo) GetByCohortAndStage(ctx context.Context, cohortID, stageID string) ([]*model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ChatMessage
	for _, m := range r.messages {
		if m.CohortID == cohortID && m.StageID == stageID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memChatRepo) CountBySender(ctx context.Context, cohortID, stageID, senderPublicID string) (int64, error) {
	messages, _ := r.GetByCohortAndStage(ctx, cohortID, stageID)
	var n int64
	for _, m := range messages {
		if m.SenderPublicID == senderPublicID {
			n++
		}
	}
	return n, nil
}

func (r *memChatRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*model.ChatMessage
	for _, m := range r.messages {
		if m.ExperimentID != experimentID {
			kept = append(kept, m)
		}
	}
	r.messages = kept
	return nil
}

type memAPIKeyRepo struct {
	mu   sync.Mutex
	byID map[string]*model.APIKey
}

func newMemAPIKeyRepo() *memAPIKeyRepo {
	return &memAPIKeyRepo{byID: make(map[string]*model.APIKey)}
}

func (r *memAPIKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	r.byID[key.ID] = key
	return nil
}

func (r *memAPIKeyRepo) GetByDigest(ctx context.Context, digest string) (*model.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.byID {
		if key.Digest == digest {
			return key, nil
		}
	}
	return nil, nil
}

func (r *memAPIKeyRepo) GetByExperimenterID(ctx context.Context, experimenterID string) ([]*model.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.APIKey
	for _, key := range r.byID {
		if key.ExperimenterID == experimenterID {
			out = append(out, key)
		}
	}
	return out, nil
}

func (r *memAPIKeyRepo) Revoke(ctx context.Context, id, experimenterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.byID[id]; ok && key.ExperimenterID == experimenterID {
		now := time.Now()
		key.RevokedAt = &now
	}
	return nil
}

type memCohortCache struct {
	mu        sync.Mutex
	meta      map[string]*model.CohortMeta
	unlocked  map[string]map[string]bool
	chatFired map[string]bool
}

func newMemCohortCache() *memCohortCache {
	return &memCohortCache{
		meta:      make(map[string]*model.CohortMeta),
		unlocked:  make(map[string]map[string]bool),
		chatFired: make(map[string]bool),
	}
}

func (c *memCohortCache) SetMeta(ctx context.Context, cohortID string, meta *model.CohortMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta[cohortID] = meta
	return nil
}

func (c *memCohortCache) GetMeta(ctx context.Context, cohortID string) (*model.CohortMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta[cohortID], nil
}

func (c *memCohortCache) SetStageUnlocked(ctx context.Context, cohortID, stageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unlocked[cohortID] == nil {
		c.unlocked[cohortID] = make(map[string]bool)
	}
	c.unlocked[cohortID][stageID] = true
	return nil
}

func (c *memCohortCache) IsStageUnlocked(ctx context.Context, cohortID, stageID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocked[cohortID][stageID], nil
}

func (c *memCohortCache) MarkChatFired(ctx context.Context, cohortID, stageID, publicID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cohortID + "|" + stageID + "|" + publicID
	if c.chatFired[key] {
		return false, nil
	}
	c.chatFired[key] = true
	return true, nil
}

func (c *memCohortCache) Delete(ctx context.Context, cohortID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.meta, cohortID)
	delete(c.unlocked, cohortID)
	return nil
}

type memPresenceCache struct {
	mu        sync.Mutex
	connected map[string]bool
	waiting   map[string]bool
}

func newMemPresenceCache() *memPresenceCache {
	return &memPresenceCache{
		connected: make(map[string]bool),
		waiting:   make(map[string]bool),
	}
}

func (c *memPresenceCache) SetConnected(ctx context.Context, privateID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[privateID] = true
	return nil
}

func (c *memPresenceCache) SetDisconnected(ctx context.Context, privateID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connected, privateID)
	return nil
}

func (c *memPresenceCache) IsConnected(ctx context.Context, privateID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[privateID], nil
}

func (c *memPresenceCache) SetWaiting(ctx context.Context, privateID string, waiting bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if waiting {
		c.waiting[privateID] = true
	} else {
		delete(c.waiting, privateID)
	}
	return nil
}

func (c *memPresenceCache) IsWaiting(ctx context.Context, privateID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting[privateID], nil
}

type memProgressCache struct {
	mu     sync.Mutex
	boards map[string]map[string]int
}

func newMemProgressCache() *memProgressCache {
	return &memProgressCache{boards: make(map[string]map[string]int)}
}

func (c *memProgressCache) SetStageIndex(ctx context.Context, cohortID, publicID string, stageIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boards[cohortID] == nil {
		c.boards[cohortID] = make(map[string]int)
	}
	c.boards[cohortID][publicID] = stageIndex
	return nil
}

func (c *memProgressCache) GetBoard(ctx context.Context, cohortID string, limit int) ([]cache.ProgressEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []cache.ProgressEntry
	for publicID, index := range c.boards[cohortID] {
		out = append(out, cache.ProgressEntry{PublicID: publicID, StageIndex: index})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageIndex > out[j].StageIndex })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (c *memProgressCache) Remove(ctx context.Context, cohortID, publicID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.boards[cohortID], publicID)
	return nil
}

// testEnv wires the full service graph over the in-memory fakes.
type testEnv struct {
	participantRepo *memParticipantRepo
	experimentRepo  *memExperimentRepo
	stageRepo       *memStageRepo
	cohortRepo      *memCohortRepo
	answerRepo      *memAnswerRepo
	publicDataRepo  *memPublicDataRepo
	chatRepo        *memChatRepo
	apiKeyRepo      *memAPIKeyRepo
	cohortCache     *memCohortCache
	presenceCache   *memPresenceCache
	progressCache   *memProgressCache

	bus *events.Bus

	authSvc        *AuthService
	variableSvc    *VariableService
	experimentSvc  *ExperimentService
	cohortSvc      *CohortService
	participantSvc *ParticipantService
	transferSvc    *TransferService
	answerSvc      *AnswerService
	agentSvc       *AgentService
}

func newTestEnv() *testEnv {
	e := &testEnv{
		participantRepo: newMemParticipantRepo(),
		experimentRepo:  newMemExperimentRepo(),
		stageRepo:       newMemStageRepo(),
		cohortRepo:      newMemCohortRepo(),
		answerRepo:      newMemAnswerRepo(),
		publicDataRepo:  newMemPublicDataRepo(),
		chatRepo:        newMemChatRepo(),
		apiKeyRepo:      newMemAPIKeyRepo(),
		cohortCache:     newMemCohortCache(),
		presenceCache:   newMemPresenceCache(),
		progressCache:   newMemProgressCache(),
		bus:             events.NewBus(64),
	}

	txn := repository.PassthroughTxnRunner{}

	e.authSvc = NewAuthService(e.apiKeyRepo)
	e.variableSvc = NewVariableService(e.participantRepo)
	e.experimentSvc = NewExperimentService(
		e.experimentRepo, e.stageRepo, e.cohortRepo, e.participantRepo,
		e.answerRepo, e.publicDataRepo, e.chatRepo, e.variableSvc, txn,
	)
	e.cohortSvc = NewCohortService(e.cohortRepo, e.participantRepo, e.stageRepo, e.experimentRepo, e.cohortCache, txn, e.bus)
	e.participantSvc = NewParticipantService(
		e.participantRepo, e.experimentRepo, e.stageRepo, e.publicDataRepo,
		e.cohortCache, e.presenceCache, e.progressCache,
		e.cohortSvc, e.authSvc, e.variableSvc, txn, e.bus,
	)
	e.transferSvc = NewTransferService(
		e.participantRepo, e.experimentRepo, e.cohortRepo, e.stageRepo, e.publicDataRepo,
		e.cohortCache, e.progressCache, e.cohortSvc, txn, e.bus,
	)
	e.answerSvc = NewAnswerService(e.answerRepo, e.publicDataRepo, e.chatRepo, e.participantRepo, e.stageRepo, txn)
	e.agentSvc = NewAgentService(e.participantRepo, e.stageRepo, e.cohortCache, e.cohortSvc, e.participantSvc, e.answerSvc, e.transferSvc)
	return e
}

// unlockStages marks stages as unlocked in both the store and the cache
// mirror, the state UpdateStageUnlocked leaves behind.
func (e *testEnv) unlockStages(cohortID string, stageIDs ...string) {
	ctx := context.Background()
	for _, stageID := range stageIDs {
		if err := e.cohortRepo.SetStageUnlocked(ctx, cohortID, stageID); err != nil {
			panic(err)
		}
		if err := e.cohortCache.SetStageUnlocked(ctx, cohortID, stageID); err != nil {
			panic(err)
		}
	}
}

// seedExperiment inserts an experiment and its stages directly into the
// fakes, bypassing the service layer's ID generation.
func (e *testEnv) seedExperiment(id string, stages []*model.StageConfig, configs []model.VariableConfig) *model.Experiment {
	ctx := context.Background()
	stageIDs := make([]string, len(stages))
	for i, s := range stages {
		s.ExperimentID = id
		stageIDs[i] = s.ID
		if err := e.stageRepo.Create(ctx, s); err != nil {
			panic(err)
		}
	}
	experiment := &model.Experiment{
		ID:              id,
		ExperimenterID:  "exp_test",
		Name:            "test experiment",
		StageIDs:        stageIDs,
		VariableConfigs: configs,
		VariableMap:     make(map[string]string),
		CohortLockMap:   make(map[string]bool),
	}
	if err := e.experimentRepo.Create(ctx, experiment); err != nil {
		panic(err)
	}
	return experiment
}

func (e *testEnv) seedCohort(id, experimentID string, stageIDs []string) *model.CohortConfig {
	unlockMap := make(map[string]bool, len(stageIDs))
	for _, stageID := range stageIDs {
		unlockMap[stageID] = false
	}
	cohort := &model.CohortConfig{
		ID:             id,
		ExperimentID:   experimentID,
		Name:           "test cohort",
		StageUnlockMap: unlockMap,
		VariableMap:    make(map[string]string),
	}
	if err := e.cohortRepo.Create(context.Background(), cohort); err != nil {
		panic(err)
	}
	return cohort
}

func (e *testEnv) seedParticipant(privateID, experimentID, cohortID, stageID string) *model.ParticipantProfile {
	p := &model.ParticipantProfile{
		PrivateID:       privateID,
		PublicID:        "pub-" + privateID,
		ExperimentID:    experimentID,
		CurrentCohortID: cohortID,
		CurrentStageID:  stageID,
		CurrentStatus:   model.StatusInProgress,
		Timestamps:      model.NewProgressTimestamps(),
		VariableMap:     make(map[string]string),
		JoinedAt:        time.Now(),
	}
	if stageID != "" {
		p.Timestamps.ReadyStages[stageID] = model.ToUnifiedTimestamp(p.JoinedAt)
	}
	if err := e.participantRepo.Create(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}
