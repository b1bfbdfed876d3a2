// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package circuitbreaker tracks the health of the gateway's execution paths
// (debugger and agent-runner) and short-circuits a service after repeated
// failures.
//
// Each service has a Closed/Open/HalfOpen state machine:
//
//	Closed   --FailureThreshold failures within MonitoringPeriod-->  Open
//	Open     --ResetTimeout elapsed-->                               HalfOpen
//	HalfOpen --single trial succeeds-->                              Closed
//	HalfOpen --single trial fails-->                                 Open
//
// Callers obtain a Ticket with Acquire and report the outcome on it. State is
// shared by every request routed to the same service.
package circuitbreaker
