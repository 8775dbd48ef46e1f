// Package codec centralizes JSON encode/decode so every package that
// crosses the store boundary (cached objects, RPC envelopes, shard and
// state-bag schemas) uses the same jsoniter configuration.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package codec

import (
	jsoniter "github.com/json-iterator/go"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal panics on failure the way teacher's cmn.MustMarshal does: a
// marshal failure on an internally-constructed value is a programming
// error, not a runtime condition callers should handle.
func Marshal(v interface{}) []byte {
	b, err := api.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func MarshalErr(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}
