package api

// Service accessors group Client methods by resource. Each service embeds
// *Client so existing call sites keep working while tests can substitute
// a Requester.

type TicketsService struct{ *Client }

type DepartmentsService struct{ *Client }

type OperatorsService struct{ *Client }

type GuestService struct{ *Client }

// Tickets returns the operator ticket service.
func (c *Client) Tickets() TicketsService { return TicketsService{c} }

// Departments returns the department service.
func (c *Client) Departments() DepartmentsService { return DepartmentsService{c} }

// Operators returns the operator directory service.
func (c *Client) Operators() OperatorsService { return OperatorsService{c} }

// Guest returns the client portal service.
func (c *Client) Guest() GuestService { return GuestService{c} }
