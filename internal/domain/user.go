// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// ConnID identifies one live relay connection. A client token may own many.
type ConnID string

// ProducerID identifies an outbound media track on the conferencing transport.
type ProducerID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

func NewProducerID() ProducerID { return ProducerID(uuid.NewString()) }
