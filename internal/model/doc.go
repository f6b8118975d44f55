// Package model is a small in-memory information model.
//
// Entities are registered together with their reference properties, and a
// Resolver turns a (entity, property) pair into the referenced entity.
package model
