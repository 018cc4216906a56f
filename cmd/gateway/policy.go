package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"access-gateway/middleware/authz/domain"

	"gopkg.in/yaml.v3"
)

// policy mapeia rotas (padrões chi) para a permissão exigida.
//
//	routes:
//	  - pattern: /api/users/*
//	    methods: [GET]
//	    permission: user:read
type policy struct {
	Routes []route `yaml:"routes"`
}

type route struct {
	Pattern    string            `yaml:"pattern"`
	Methods    []string          `yaml:"methods"`
	Permission domain.Permission `yaml:"permission"`
}

func loadPolicy(path string) (policy, error) {
	if path == "" {
		return policy{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy{}, fmt.Errorf("read policy: %w", err)
	}
	return parsePolicy(raw)
}

func parsePolicy(raw []byte) (policy, error) {
	var p policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return policy{}, fmt.Errorf("parse policy: %w", err)
	}

	var errs []error
	for i, r := range p.Routes {
		if !strings.HasPrefix(r.Pattern, "/") {
			errs = append(errs, fmt.Errorf("route %d: pattern must start with /", i))
		}
		if !r.Permission.Valid() {
			errs = append(errs, fmt.Errorf("route %d: invalid permission %q", i, r.Permission))
		}
		for j, m := range r.Methods {
			m = strings.ToUpper(strings.TrimSpace(m))
			if !knownMethod(m) {
				errs = append(errs, fmt.Errorf("route %d: unknown method %q", i, m))
			}
			p.Routes[i].Methods[j] = m
		}
	}
	if err := errors.Join(errs...); err != nil {
		return policy{}, err
	}
	return p, nil
}

func knownMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}
