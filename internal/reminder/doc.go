// Package reminder implements the multi-user reminder scheduling engine:
// a control loop that decides per calendar day whether reminders fire, and
// per-user dispatchers that pick a random time inside the configured window,
// wait cooperatively, and deliver one randomly chosen note with text
// fallback for failed media sends.
package reminder
