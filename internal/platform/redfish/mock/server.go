// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// ServerConfig holds configuration for the mock BMC
type ServerConfig struct {
	Username   string
	Password   string
	PowerWatts float64
	EnableAuth bool
	EnableTLS  bool
	ForceError ErrorType
}

// ErrorType represents different error scenarios
type ErrorType string

const (
	ErrorNone           ErrorType = ""
	ErrorAuth           ErrorType = "auth"
	ErrorMissingChassis ErrorType = "missing_chassis"
	ErrorMissingPower   ErrorType = "missing_power"
	ErrorInternalServer ErrorType = "internal_server"
)

// Server is a mock Redfish BMC exposing one chassis with the Power API
type Server struct {
	server *httptest.Server

	mu       sync.RWMutex
	config   ServerConfig
	sessions map[string]bool
	nextID   atomic.Int64
	reads    atomic.Int64
}

// NewServer starts a new mock Redfish server
func NewServer(config ServerConfig) *Server {
	if config.Username == "" {
		config.Username = "admin"
	}
	if config.Password == "" {
		config.Password = "password"
	}

	s := &Server{
		config:   config,
		sessions: make(map[string]bool),
	}
	if config.EnableTLS {
		s.server = httptest.NewTLSServer(http.HandlerFunc(s.handler))
	} else {
		s.server = httptest.NewServer(http.HandlerFunc(s.handler))
	}
	return s
}

// URL returns the server's URL
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts down the mock server
func (s *Server) Close() {
	s.server.Close()
}

// SetPowerWatts changes the power reported by the chassis
func (s *Server) SetPowerWatts(watts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.PowerWatts = watts
}

// SetError forces a specific error scenario
func (s *Server) SetError(e ErrorType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.ForceError = e
}

// PowerReads returns how many times the Power resource was served
func (s *Server) PowerReads() int64 {
	return s.reads.Load()
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg := s.config
	s.mu.RUnlock()

	if cfg.ForceError == ErrorInternalServer {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("OData-Version", "4.0")

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/redfish/v1":
		writeJSON(w, serviceRoot())
	case path == "/redfish/v1/SessionService/Sessions" && r.Method == http.MethodPost:
		s.createSession(w, r, cfg)
	case strings.HasPrefix(path, "/redfish/v1/SessionService/Sessions/") && r.Method == http.MethodDelete:
		s.mu.Lock()
		delete(s.sessions, strings.TrimPrefix(path, "/redfish/v1/SessionService/Sessions/"))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case path == "/redfish/v1/Chassis":
		if cfg.ForceError == ErrorMissingChassis {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, chassisCollection())
	case path == "/redfish/v1/Chassis/1":
		writeJSON(w, chassis())
	case path == "/redfish/v1/Chassis/1/Power":
		if cfg.ForceError == ErrorMissingPower {
			http.NotFound(w, r)
			return
		}
		s.reads.Add(1)
		writeJSON(w, PowerResponse(cfg.PowerWatts))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, cfg ServerConfig) {
	if cfg.ForceError == ErrorAuth {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var creds struct {
		UserName string `json:"UserName"`
		Password string `json:"Password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if cfg.EnableAuth && (creds.UserName != cfg.Username || creds.Password != cfg.Password) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := fmt.Sprintf("session_%d", s.nextID.Add(1))
	s.mu.Lock()
	s.sessions[id] = true
	s.mu.Unlock()

	location := "/redfish/v1/SessionService/Sessions/" + id
	w.Header().Set("X-Auth-Token", "token-"+id)
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"@odata.id": location,
		"Id":        id,
		"Name":      "Session",
		"UserName":  creds.UserName,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func serviceRoot() map[string]any {
	return map[string]any{
		"@odata.type":    "#ServiceRoot.v1_5_0.ServiceRoot",
		"@odata.id":      "/redfish/v1/",
		"Id":             "RootService",
		"Name":           "Root Service",
		"RedfishVersion": "1.6.1",
		"Chassis":        map[string]any{"@odata.id": "/redfish/v1/Chassis"},
		"SessionService": map[string]any{"@odata.id": "/redfish/v1/SessionService"},
		"Links": map[string]any{
			"Sessions": map[string]any{"@odata.id": "/redfish/v1/SessionService/Sessions"},
		},
	}
}

func chassisCollection() map[string]any {
	return map[string]any{
		"@odata.type":         "#ChassisCollection.ChassisCollection",
		"@odata.id":           "/redfish/v1/Chassis",
		"Name":                "Chassis Collection",
		"Members@odata.count": 1,
		"Members":             []map[string]any{{"@odata.id": "/redfish/v1/Chassis/1"}},
	}
}

func chassis() map[string]any {
	return map[string]any{
		"@odata.type": "#Chassis.v1_10_0.Chassis",
		"@odata.id":   "/redfish/v1/Chassis/1",
		"Id":          "1",
		"Name":        "Computer System Chassis",
		"ChassisType": "RackMount",
		"PowerState":  "On",
		"Power":       map[string]any{"@odata.id": "/redfish/v1/Chassis/1/Power"},
	}
}
