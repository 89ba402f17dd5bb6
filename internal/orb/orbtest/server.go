package orbtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/orb"
	"github.com/orb-community/orb-acceptance/pkg/certificates"
	"github.com/orb-community/orb-acceptance/pkg/payload"
)

// Server is an in-memory Orb control plane. Agents do not run: their
// heartbeat is derived from groups, datasets and the hooks below.
type Server struct {
	mu       sync.Mutex
	agents   map[string]*orb.Agent
	groups   map[string]*orb.Group
	policies map[string]*orb.Policy
	datasets map[string]*orb.Dataset
	sinks    map[string]*orb.Sink

	email    string
	password string
	key      []byte
	tokenTTL time.Duration
	logins   int

	// derived heartbeats are off for agents listed here
	frozen map[string]bool
	onRead map[string]func(a *orb.Agent, reads int)
	reads  map[string]int

	engine *gin.Engine
	srv    *httptest.Server
}

type Option func(*Server)

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

func New(email, password string, opts ...Option) *Server {
	s := &Server{
		agents:   map[string]*orb.Agent{},
		groups:   map[string]*orb.Group{},
		policies: map[string]*orb.Policy{},
		datasets: map[string]*orb.Dataset{},
		sinks:    map[string]*orb.Sink{},
		email:    email,
		password: password,
		key:      []byte(uuid.NewString()),
		tokenTTL: time.Hour,
		frozen:   map[string]bool{},
		onRead:   map[string]func(*orb.Agent, int){},
		reads:    map[string]int{},
	}
	for _, o := range opts {
		o(s)
	}

	gin.SetMode(gin.TestMode)
	s.engine = gin.New()
	s.engine.Use(
		ginzap.Ginzap(zap.L(), time.RFC3339, true),
		ginzap.RecoveryWithZap(zap.L(), true),
	)
	s.routes()
	return s
}

// Start serves over plain HTTP.
func (s *Server) Start() string {
	s.srv = httptest.NewServer(s.engine)
	return s.srv.URL
}

// StartTLS serves over HTTPS with a self-signed certificate for 127.0.0.1.
func (s *Server) StartTLS() (string, error) {
	cfg, _, err := certificates.ServerTLSConfig([]string{"127.0.0.1", "localhost"}, time.Now().Add(time.Hour))
	if err != nil {
		return "", err
	}
	s.srv = httptest.NewUnstartedServer(s.engine)
	s.srv.TLS = cfg
	s.srv.StartTLS()
	return s.srv.URL, nil
}

func (s *Server) Close() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.POST("/api/v1/tokens", s.login)

	api := s.engine.Group("/api/v1", s.authenticate)

	api.GET("/agents/backends", s.backendRoute("backends"))
	api.GET("/agents/backends/pktvisor/taps", s.backendRoute("taps"))
	api.GET("/agents/backends/pktvisor/inputs", s.backendRoute("inputs"))
	api.GET("/agents/backends/pktvisor/handlers", s.backendRoute("handlers"))

	api.POST("/agents", s.createAgent)
	api.GET("/agents", s.listAgents)
	api.GET("/agents/:id", s.getAgent)
	api.PUT("/agents/:id", s.editAgent)
	api.DELETE("/agents/:id", s.deleteAgent)
	api.POST("/agents/:id/rpc/reset", s.resetAgent)

	api.POST("/agent_groups", s.createGroup)
	api.GET("/agent_groups", s.listGroups)
	api.GET("/agent_groups/:id", s.getGroup)
	api.PUT("/agent_groups/:id", s.editGroup)
	api.DELETE("/agent_groups/:id", s.deleteGroup)

	api.POST("/policies/agent", s.createPolicy)
	api.GET("/policies/agent", s.listPolicies)
	api.GET("/policies/agent/:id", s.getPolicy)
	api.PUT("/policies/agent/:id", s.editPolicy)
	api.DELETE("/policies/agent/:id", s.deletePolicy)
	api.POST("/policies/agent/:id/duplicate", s.duplicatePolicy)

	api.POST("/policies/dataset", s.createDataset)
	api.GET("/policies/dataset", s.listDatasets)
	api.GET("/policies/dataset/:id", s.getDataset)
	api.DELETE("/policies/dataset/:id", s.deleteDataset)

	api.POST("/sinks", s.createSink)
	api.GET("/sinks", s.listSinks)
	api.GET("/sinks/:id", s.getSink)
	api.DELETE("/sinks/:id", s.deleteSink)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Email != s.email || req.Password != s.password {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing or invalid credentials provided"})
		return
	}

	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   req.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		ID:        uuid.NewString(),
	}).SignedString(s.key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.logins++
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"token": token})
}

func (s *Server) authenticate(c *gin.Context) {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

func (s *Server) backendRoute(route string) gin.HandlerFunc {
	bodies := map[string]any{
		"backends": []gin.H{{"backend": "pktvisor", "description": "pktvisor observability agent from pktvisor.dev"}, {"backend": "otel"}},
		"taps":     []gin.H{{"name": "default_pcap", "input_type": "pcap", "config_predefined": []string{"iface"}}},
		"inputs":   gin.H{"pcap": gin.H{"1.0": gin.H{"filter": gin.H{}}}, "flow": gin.H{"1.0": gin.H{}}},
		"handlers": gin.H{"dns": gin.H{"1.0": gin.H{}}, "net": gin.H{"1.0": gin.H{}}, "dhcp": gin.H{"1.0": gin.H{}}},
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, bodies[route])
	}
}

func (s *Server) createAgent(c *gin.Context) {
	var req payload.AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed entity specification"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Name == req.Name {
			c.JSON(http.StatusConflict, gin.H{"error": "entity already exists"})
			return
		}
	}
	a := &orb.Agent{
		ID:        uuid.NewString(),
		Name:      req.Name,
		ChannelID: uuid.NewString(),
		Key:       uuid.NewString(),
		State:     orb.AgentNew,
		OrbTags:   req.OrbTags,
		TsCreated: time.Now().UTC(),
	}
	s.agents[a.ID] = a
	c.JSON(http.StatusCreated, a)
}

func (s *Server) listAgents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]orb.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		s.heartbeat(a)
		items = append(items, *a)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	page(c, "agents", items)
}

func (s *Server) getAgent(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	s.reads[a.ID]++
	if fn, ok := s.onRead[a.ID]; ok {
		fn(a, s.reads[a.ID])
	}
	s.heartbeat(a)
	c.JSON(http.StatusOK, a)
}

func (s *Server) editAgent(c *gin.Context) {
	var req payload.AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	a.Name = req.Name
	a.OrbTags = req.OrbTags
	s.heartbeat(a)
	c.JSON(http.StatusOK, a)
}

func (s *Server) deleteAgent(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) resetAgent(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	if a.State != orb.AgentOnline {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent is not online"})
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) createGroup(c *gin.Context) {
	var req payload.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || len(req.Tags) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed entity specification"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Name == req.Name {
			c.JSON(http.StatusConflict, gin.H{"error": "entity already exists"})
			return
		}
	}
	g := &orb.Group{ID: uuid.NewString(), Name: req.Name, Description: req.Description, Tags: req.Tags}
	s.groups[g.ID] = g
	s.match(g)
	c.JSON(http.StatusCreated, g)
}

func (s *Server) listGroups(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]orb.Group, 0, len(s.groups))
	for _, g := range s.groups {
		s.match(g)
		items = append(items, *g)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	page(c, "agentGroups", items)
}

func (s *Server) getGroup(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	s.match(g)
	c.JSON(http.StatusOK, g)
}

func (s *Server) editGroup(c *gin.Context) {
	var req payload.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	g.Name, g.Description, g.Tags = req.Name, req.Description, req.Tags
	s.match(g)
	c.JSON(http.StatusOK, g)
}

func (s *Server) deleteGroup(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	delete(s.groups, id)
	for _, d := range s.datasets {
		if d.AgentGroupID == id {
			d.Valid = false
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createPolicy(c *gin.Context) {
	var req payload.PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed entity specification"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, status, msg := s.addPolicy(req)
	if p == nil {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) addPolicy(req payload.PolicyRequest) (*orb.Policy, int, string) {
	for _, p := range s.policies {
		if p.Name == req.Name {
			return nil, http.StatusConflict, "entity already exists"
		}
	}
	p := &orb.Policy{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Backend:     req.Backend,
		Tags:        req.Tags,
		Format:      req.Format,
		PolicyData:  req.PolicyData,
	}
	if req.Policy != nil {
		raw, err := jsonRaw(req.Policy)
		if err != nil {
			return nil, http.StatusBadRequest, err.Error()
		}
		p.Policy = raw
	}
	s.policies[p.ID] = p
	return p, http.StatusCreated, ""
}

func (s *Server) listPolicies(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]orb.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		items = append(items, *p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	page(c, "data", items)
}

func (s *Server) getPolicy(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) editPolicy(c *gin.Context) {
	var req payload.PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	for _, other := range s.policies {
		if other.ID != p.ID && other.Name == req.Name {
			c.JSON(http.StatusConflict, gin.H{"error": "entity already exists"})
			return
		}
	}
	p.Name, p.Description = req.Name, req.Description
	if req.Policy != nil {
		raw, err := jsonRaw(req.Policy)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.Policy = raw
	}
	p.Version++
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePolicy(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	delete(s.policies, id)
	for _, d := range s.datasets {
		if d.AgentPolicyID == id {
			d.Valid = false
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) duplicatePolicy(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.policies[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	name := req.Name
	if name == "" {
		name = src.Name + "_copy"
	}
	dup := *src
	dup.ID = uuid.NewString()
	dup.Name = name
	dup.Version = 0
	for _, p := range s.policies {
		if p.Name == name {
			c.JSON(http.StatusConflict, gin.H{"error": "entity already exists"})
			return
		}
	}
	s.policies[dup.ID] = &dup
	c.JSON(http.StatusCreated, dup)
}

func (s *Server) createDataset(c *gin.Context) {
	var req payload.DatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed entity specification"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[req.AgentGroupID]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent group not found"})
		return
	}
	if _, ok := s.policies[req.AgentPolicyID]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "policy not found"})
		return
	}
	d := &orb.Dataset{
		ID:            uuid.NewString(),
		Name:          req.Name,
		AgentGroupID:  req.AgentGroupID,
		AgentPolicyID: req.AgentPolicyID,
		SinkIDs:       req.SinkIDs,
		Valid:         true,
	}
	s.datasets[d.ID] = d
	c.JSON(http.StatusCreated, d)
}

func (s *Server) listDatasets(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]orb.Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		items = append(items, *d)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	page(c, "data", items)
}

func (s *Server) getDataset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) deleteDataset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.datasets, c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) createSink(c *gin.Context) {
	var req payload.SinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Config.RemoteHost == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed entity specification"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sk := &orb.Sink{ID: uuid.NewString(), Name: req.Name, Description: req.Description, Backend: req.Backend, State: "unknown", Tags: req.Tags}
	s.sinks[sk.ID] = sk
	c.JSON(http.StatusCreated, sk)
}

func (s *Server) listSinks(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]orb.Sink, 0, len(s.sinks))
	for _, sk := range s.sinks {
		items = append(items, *sk)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	page(c, "sinks", items)
}

func (s *Server) getSink(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.sinks[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "non-existent entity"})
		return
	}
	c.JSON(http.StatusOK, sk)
}

func (s *Server) deleteSink(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, c.Param("id"))
	c.Status(http.StatusNoContent)
}

// page writes one offset/limit window of items under key.
func page[T any](c *gin.Context, key string, items []T) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	total := len(items)
	start := min(max(offset, 0), total)
	end := min(start+limit, total)
	c.JSON(http.StatusOK, gin.H{
		key:      items[start:end],
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("orbtest{agents=%d groups=%d policies=%d datasets=%d sinks=%d}",
		len(s.agents), len(s.groups), len(s.policies), len(s.datasets), len(s.sinks))
}
