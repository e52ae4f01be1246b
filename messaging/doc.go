// Package messaging contains the bus building blocks: bounded priority
// lanes, the topic router, the delivery tracker, the delayed-delivery
// scheduler, and the dead-letter log. Each structure is safe for concurrent
// use; coordination between them is the bus facade's job.
package messaging
