package dst

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rezkam/reconcile/internal/domain"
)

// GraphQLClient implements Reader, Mutator, ClassResolver and
// BusinessLogicInvoker over the destination org-identity-store's
// GraphQL API. The mutation names below (org_unit_create,
// engagement_update, ...) mirror the ones ariadne-codegen generated
// for original_source/sdtoolplus's autogenerated_graphql_client; this
// adapter issues the same mutations by hand instead of through a
// generated client, since no GraphQL client library is available in
// this project's dependency set.
type GraphQLClient struct {
	Endpoint   string
	HTTPClient *http.Client
	MaxRetries uint
}

// NewGraphQLClient builds a GraphQLClient with a bounded per-request
// timeout.
func NewGraphQLClient(endpoint string, timeout time.Duration) *GraphQLClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GraphQLClient{Endpoint: endpoint, HTTPClient: &http.Client{Timeout: timeout}, MaxRetries: 3}
}

func (c *GraphQLClient) maxTries() uint {
	if c.MaxRetries == 0 {
		return 3
	}
	return c.MaxRetries
}

var (
	_ Reader               = (*GraphQLClient)(nil)
	_ Mutator              = (*GraphQLClient)(nil)
	_ ClassResolver        = (*GraphQLClient)(nil)
	_ BusinessLogicInvoker = (*GraphQLClient)(nil)
)

type graphqlRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

// do issues the GraphQL request, retrying transient failures (network
// errors, 5xx) with backoff; a malformed request or a GraphQL-level
// error is permanent.
func (c *GraphQLClient) do(ctx context.Context, query string, variables, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	gr, err := backoff.Retry(ctx, func() (graphqlResponse, error) {
		return c.doRequest(ctx, body)
	}, backoff.WithMaxTries(c.maxTries()), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", gr.Errors[0].Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}

func (c *GraphQLClient) doRequest(ctx context.Context, body []byte) (graphqlResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return graphqlResponse{}, backoff.Permanent(fmt.Errorf("failed to build graphql request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return graphqlResponse{}, fmt.Errorf("graphql request failed: %w", err) // transient
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return graphqlResponse{}, backoff.Permanent(fmt.Errorf("graphql endpoint returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return graphqlResponse{}, fmt.Errorf("graphql endpoint returned status %d", resp.StatusCode) // 5xx, transient
	}

	var gr graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return graphqlResponse{}, backoff.Permanent(fmt.Errorf("failed to decode graphql response: %w", err))
	}
	return gr, nil
}

const queryGetUnits = `query GetUnits($root: UUID!) { org_units(filter: {ancestor: {uuids: [$root]}}) { objects { validities { uuid parent { uuid } name user_key org_unit_level { name } validity { from to } } } } }`

func (c *GraphQLClient) GetUnits(ctx context.Context, root domain.UnitID) ([]UnitValidity, error) {
	var out struct {
		OrgUnits struct {
			Objects []struct {
				Validities []UnitValidity `json:"validities"`
			} `json:"objects"`
		} `json:"org_units"`
	}
	if err := c.do(ctx, queryGetUnits, map[string]any{"root": root.String()}, &out); err != nil {
		return nil, err
	}
	var validities []UnitValidity
	for _, obj := range out.OrgUnits.Objects {
		validities = append(validities, obj.Validities...)
	}
	return validities, nil
}

const queryGetEngagements = `query GetEngagements($unit: UUID!) { engagements(filter: {org_unit: {uuids: [$unit]}}) { objects { validities { user_key job_function { name } org_unit { uuid } engagement_type { uuid } validity { from to } } } } }`

func (c *GraphQLClient) GetEngagements(ctx context.Context, unit domain.UnitID) ([]EngagementValidity, error) {
	var out struct {
		Engagements struct {
			Objects []struct {
				Validities []EngagementValidity `json:"validities"`
			} `json:"objects"`
		} `json:"engagements"`
	}
	if err := c.do(ctx, queryGetEngagements, map[string]any{"unit": unit.String()}, &out); err != nil {
		return nil, err
	}
	var validities []EngagementValidity
	for _, obj := range out.Engagements.Objects {
		validities = append(validities, obj.Validities...)
	}
	return validities, nil
}

const queryGetAddresses = `query GetAddresses($unit: UUID!) { addresses(filter: {org_unit: {uuids: [$unit]}}) { objects { current { uuid address_type { scope } value } } } }`

func (c *GraphQLClient) GetAddresses(ctx context.Context, unit domain.UnitID) ([]AddressValidity, error) {
	var out struct {
		Addresses struct {
			Objects []struct {
				Current AddressValidity `json:"current"`
			} `json:"objects"`
		} `json:"addresses"`
	}
	if err := c.do(ctx, queryGetAddresses, map[string]any{"unit": unit.String()}, &out); err != nil {
		return nil, err
	}
	validities := make([]AddressValidity, 0, len(out.Addresses.Objects))
	for _, obj := range out.Addresses.Objects {
		validities = append(validities, obj.Current)
	}
	return validities, nil
}

const queryGetEngagementByKey = `query GetEngagementByKey($key: String!) { engagements(filter: {user_keys: [$key]}) { objects { validities { user_key job_function { name } org_unit { uuid } engagement_type { uuid } validity { from to } } } } }`

func (c *GraphQLClient) GetEngagementByKey(ctx context.Context, key domain.EmploymentKey) ([]EngagementValidity, error) {
	var out struct {
		Engagements struct {
			Objects []struct {
				Validities []EngagementValidity `json:"validities"`
			} `json:"objects"`
		} `json:"engagements"`
	}
	if err := c.do(ctx, queryGetEngagementByKey, map[string]any{"key": string(key)}, &out); err != nil {
		return nil, err
	}
	var validities []EngagementValidity
	for _, obj := range out.Engagements.Objects {
		validities = append(validities, obj.Validities...)
	}
	return validities, nil
}

const mutationOrgUnitCreate = `mutation OrgUnitCreate($input: OrgUnitCreateInput!) { org_unit_create(input: $input) { uuid } }`

func (c *GraphQLClient) CreateUnit(ctx context.Context, op UnitMutation) error {
	return c.do(ctx, mutationOrgUnitCreate, map[string]any{"input": unitMutationInput(op)}, nil)
}

const mutationOrgUnitUpdate = `mutation OrgUnitUpdate($input: OrgUnitUpdateInput!) { org_unit_update(input: $input) { uuid } }`

func (c *GraphQLClient) UpdateUnit(ctx context.Context, op UnitMutation) error {
	return c.do(ctx, mutationOrgUnitUpdate, map[string]any{"input": unitMutationInput(op)}, nil)
}

const mutationOrgUnitTerminate = `mutation OrgUnitTerminate($input: OrgUnitTerminateInput!) { org_unit_terminate(input: $input) { uuid } }`

func (c *GraphQLClient) TerminateUnit(ctx context.Context, id domain.UnitID, op Termination) error {
	return c.do(ctx, mutationOrgUnitTerminate, map[string]any{"input": map[string]any{
		"uuid": id.String(), "validity": map[string]any{"to": terminationTo(op)},
	}}, nil)
}

const mutationEngagementCreate = `mutation EngagementCreate($input: EngagementCreateInput!) { engagement_create(input: $input) { uuid } }`

func (c *GraphQLClient) CreateEngagement(ctx context.Context, op EngagementMutation) error {
	return c.do(ctx, mutationEngagementCreate, map[string]any{"input": engagementMutationInput(op)}, nil)
}

const mutationEngagementUpdate = `mutation EngagementUpdate($input: EngagementUpdateInput!) { engagement_update(input: $input) { uuid } }`

func (c *GraphQLClient) UpdateEngagement(ctx context.Context, op EngagementMutation) error {
	return c.do(ctx, mutationEngagementUpdate, map[string]any{"input": engagementMutationInput(op)}, nil)
}

const mutationEngagementTerminate = `mutation EngagementTerminate($input: EngagementTerminateInput!) { engagement_terminate(input: $input) { uuid } }`

func (c *GraphQLClient) TerminateEngagement(ctx context.Context, key domain.EmploymentKey, op Termination) error {
	return c.do(ctx, mutationEngagementTerminate, map[string]any{"input": map[string]any{
		"user_key": string(key), "validity": map[string]any{"to": terminationTo(op)},
	}}, nil)
}

// terminationTo returns the GraphQL-bound "to" date for a termination:
// BuildTermination's Cutoff for an open-ended decision, its explicit
// End otherwise.
func terminationTo(op Termination) any {
	if op.OpenEnded {
		return op.Cutoff
	}
	return op.End
}

const mutationAddressCreate = `mutation AddressCreate($input: AddressCreateInput!) { address_create(input: $input) { uuid } }`

func (c *GraphQLClient) CreateAddress(ctx context.Context, unit domain.UnitID, addr AddressMutation) error {
	return c.do(ctx, mutationAddressCreate, map[string]any{"input": map[string]any{
		"org_unit": unit.String(), "address_type": addr.Type, "value": addr.Value,
	}}, nil)
}

const mutationAddressUpdate = `mutation AddressUpdate($input: AddressUpdateInput!) { address_update(input: $input) { uuid } }`

func (c *GraphQLClient) UpdateAddress(ctx context.Context, addr AddressMutation) error {
	return c.do(ctx, mutationAddressUpdate, map[string]any{"input": map[string]any{
		"uuid": addr.ID.String(), "value": addr.Value,
	}}, nil)
}

const queryGetFacetUUID = `query GetFacetUUID($facet: String!, $class: String!) { classes(filter: {facet: {user_keys: [$facet]}, user_keys: [$class]}) { objects { uuid } } }`

// ResolveClass looks up a class UUID within a facet, used by the
// by-hierarchy-class filter.
func (c *GraphQLClient) ResolveClass(ctx context.Context, facet, className string) (domain.UnitID, error) {
	var out struct {
		Classes struct {
			Objects []struct {
				UUID string `json:"uuid"`
			} `json:"objects"`
		} `json:"classes"`
	}
	if err := c.do(ctx, queryGetFacetUUID, map[string]any{"facet": facet, "class": className}, &out); err != nil {
		return domain.UnitID{}, err
	}
	if len(out.Classes.Objects) == 0 {
		return domain.UnitID{}, fmt.Errorf("class %q not found in facet %q", className, facet)
	}
	return domain.ParseUnitID(out.Classes.Objects[0].UUID)
}

// ApplyBusinessLogic is a no-op trigger hook by default; the original
// project's "NY logic" (app.py's _should_apply_ny_logic) is
// institution-specific and left for a caller to override by wrapping
// GraphQLClient or supplying a different BusinessLogicInvoker.
func (c *GraphQLClient) ApplyBusinessLogic(ctx context.Context, unit domain.UnitID) error {
	return nil
}

func unitMutationInput(op UnitMutation) map[string]any {
	input := map[string]any{
		"uuid":     op.ID.String(),
		"name":     op.Name,
		"user_key": op.UserKey,
		"validity": map[string]any{"from": op.From, "to": op.To},
	}
	if op.HasParent {
		input["parent"] = op.ParentID.String()
	}
	if op.HierarchyClass != nil {
		input["org_unit_hierarchy"] = op.HierarchyClass.String()
	}
	if op.TimePlanning != nil {
		input["time_planning"] = *op.TimePlanning
	}
	return input
}

func engagementMutationInput(op EngagementMutation) map[string]any {
	input := map[string]any{
		"user_key": op.JobKey,
		"org_unit": op.UnitID.String(),
		"validity": map[string]any{"from": op.From, "to": op.To},
	}
	if op.EngType != nil {
		input["engagement_type"] = string(*op.EngType)
	}
	return input
}
