/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package eventflux

import "github.com/rulego/eventflux/model"

// InputHandler is what a Source calls on every decoded event: the source
// owns its ingestion goroutine and pushes each decoded event (or batch)
// through its stream's junction. The engine
// never polls a Source.
type InputHandler interface {
	SendEvent(e *model.Event) error
	SendBatch(events []*model.Event) error
}

// Source is the adapter contract a stream's ingestion side implements.
// Start must return once the source's own goroutine is running; Stop must
// block until that goroutine has exited.
type Source interface {
	Start(handler InputHandler) error
	Stop() error
}

// junctionInputHandler adapts a Junction to the InputHandler contract a
// Source expects, so a Source never needs to know about junction.Junction
// directly.
type junctionInputHandler struct {
	send      func(*model.Event) error
	sendBatch func([]*model.Event) error
}

func (h *junctionInputHandler) SendEvent(e *model.Event) error { return h.send(e) }
func (h *junctionInputHandler) SendBatch(events []*model.Event) error {
	return h.sendBatch(events)
}
