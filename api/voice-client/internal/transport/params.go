// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	internal_type "github.com/rapidaai/voice-client/api/voice-client/internal/type"
)

// ConnectParams are normalized connection parameters. Keys other than the
// url and token aliases are kept in Extra.
type ConnectParams struct {
	URL   string                 `mapstructure:"url"`
	Token string                 `mapstructure:"token"`
	Extra map[string]interface{} `mapstructure:",remain"`
}

// legacy aliases in precedence order, after the canonical key
var (
	urlAliases   = []string{"room_url", "dailyRoom"}
	tokenAliases = []string{"dailyToken"}
)

// NormalizeParams accepts a map or struct of connection parameters and
// folds the historical aliases into url and token. The canonical key always
// wins, otherwise the first non-empty alias does. A nil input returns nil.
func NormalizeParams(params interface{}) (*ConnectParams, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := toMap(params)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	foldAlias(raw, "url", urlAliases)
	foldAlias(raw, "token", tokenAliases)
	if s, ok := raw["token"].(string); !ok || s == "" {
		delete(raw, "token")
	}

	var out ConnectParams
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build params decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, &internal_type.InvalidTransportParamsError{Reason: err.Error()}
	}
	if out.Extra == nil {
		out.Extra = map[string]interface{}{}
	}
	return &out, nil
}

func foldAlias(raw map[string]interface{}, canonical string, aliases []string) {
	value := raw[canonical]
	for _, alias := range aliases {
		v, ok := raw[alias]
		if !ok {
			continue
		}
		delete(raw, alias)
		if isEmpty(value) && !isEmpty(v) {
			value = v
		}
	}
	if !isEmpty(value) {
		raw[canonical] = value
	}
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// toMap copies params into a fresh map so the caller's value is untouched.
func toMap(params interface{}) (map[string]interface{}, error) {
	switch v := params.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case *ConnectParams:
		if v == nil {
			return nil, nil
		}
		return v.toMap(), nil
	case ConnectParams:
		return v.toMap(), nil
	}

	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map {
		return nil, &internal_type.InvalidTransportParamsError{Reason: fmt.Sprintf("expected an object, got %s", rv.Kind())}
	}

	out := map[string]interface{}{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build params decoder: %w", err)
	}
	if err := decoder.Decode(rv.Interface()); err != nil {
		return nil, &internal_type.InvalidTransportParamsError{Reason: err.Error()}
	}
	return out, nil
}

func (p ConnectParams) toMap() map[string]interface{} {
	out := make(map[string]interface{}, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.URL != "" {
		out["url"] = p.URL
	}
	if p.Token != "" {
		out["token"] = p.Token
	}
	return out
}

// apply merges the params into join options.
func (p *ConnectParams) apply(opts internal_type.JoinOptions) internal_type.JoinOptions {
	if p == nil {
		return opts
	}
	if p.URL != "" {
		opts.URL = p.URL
	}
	if p.Token != "" {
		opts.Token = p.Token
	}
	if len(p.Extra) > 0 {
		merged := make(map[string]interface{}, len(opts.Extra)+len(p.Extra))
		for k, v := range opts.Extra {
			merged[k] = v
		}
		for k, v := range p.Extra {
			merged[k] = v
		}
		opts.Extra = merged
	}
	return opts
}
