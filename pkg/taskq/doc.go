// Package taskq provides two unbounded FIFO lanes behind one blocking Pop.
//
// Producers Push into a lane. Consumers call Pop, which blocks while both
// lanes are empty and the queue is open, and alternates between lanes when
// both hold work so neither starves. After Close, Pop keeps returning items
// until both lanes are drained and then reports ok=false. Every pushed item
// is returned by exactly one Pop.
package taskq
